package config

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	logger "github.com/sirupsen/logrus"
	"golang.org/x/net/context"
	"gopkg.in/yaml.v2"

	"github.com/reqgate/reqgate/src/stats"
)

type YamlPolicy struct {
	PermitLimit   uint32 `yaml:"permit_limit"`
	WindowSeconds int64  `yaml:"window_seconds"`
	QueueLimit    uint32 `yaml:"queue_limit"`
}

type YamlRoot struct {
	AllowedRedirectHosts []string              `yaml:"allowed_redirect_hosts"`
	AllowedOrigins       []string              `yaml:"allowed_origins"`
	Policies             map[string]YamlPolicy `yaml:"policies"`
}

type gateConfigImpl struct {
	policies       map[string]*Policy
	redirectHosts  map[string]bool
	allowedOrigins []string
	originSet      map[string]bool
	statsManager   stats.Manager
}

var validRootKeys = map[string]bool{
	"allowed_redirect_hosts": true,
	"allowed_origins":        true,
	"policies":               true,
}

var validPolicyKeys = map[string]bool{
	"permit_limit":   true,
	"window_seconds": true,
	"queue_limit":    true,
}

// Policy names feed stat paths, so they are constrained to stat-safe characters.
var policyNameRegex = regexp.MustCompile(`^[a-zA-Z0-9_\-.]+$`)

// Create a new config error which includes the owning file.
// @param name supplies the config file that generated the error.
// @param err supplies the error string.
func newGateConfigError(name string, err string) GateConfigError {
	return GateConfigError(fmt.Sprintf("%s: %s", name, err))
}

// Validate a YAML config file's keys.
// @param fileName specifies the file the map was parsed from.
// @param config_map specifies the generic parsed document.
func validateYamlKeys(fileName string, config_map map[interface{}]interface{}) {
	for k, v := range config_map {
		if _, ok := k.(string); !ok {
			errorText := fmt.Sprintf("config error, key is not of type string: %v", k)
			logger.Debugf(errorText)
			panic(newGateConfigError(fileName, errorText))
		}
		if _, ok := validRootKeys[k.(string)]; !ok {
			errorText := fmt.Sprintf("config error, unknown key '%s'", k)
			logger.Debugf(errorText)
			panic(newGateConfigError(fileName, errorText))
		}

		if k.(string) == "policies" {
			switch v := v.(type) {
			case map[interface{}]interface{}:
				validatePolicyKeys(fileName, v)
			case nil:
			default:
				errorText := "config error, policies must be a map"
				logger.Debugf(errorText)
				panic(newGateConfigError(fileName, errorText))
			}
			continue
		}

		// The remaining root keys hold flat string lists.
		switch v := v.(type) {
		case []interface{}:
			for _, e := range v {
				if _, ok := e.(string); !ok {
					errorText := fmt.Sprintf("config error, %s entries must be strings: %v", k, e)
					logger.Debugf(errorText)
					panic(newGateConfigError(fileName, errorText))
				}
			}
		case nil:
		default:
			errorText := fmt.Sprintf("config error, key '%s' must hold a list of strings", k)
			logger.Debugf(errorText)
			panic(newGateConfigError(fileName, errorText))
		}
	}
}

// Validate the policies map: arbitrary policy names, fixed body keys,
// integer body values.
func validatePolicyKeys(fileName string, policies map[interface{}]interface{}) {
	for name, body := range policies {
		if _, ok := name.(string); !ok {
			errorText := fmt.Sprintf("config error, policy name is not of type string: %v", name)
			logger.Debugf(errorText)
			panic(newGateConfigError(fileName, errorText))
		}
		bodyMap, ok := body.(map[interface{}]interface{})
		if !ok {
			errorText := fmt.Sprintf("config error, policy '%s' must be a map", name)
			logger.Debugf(errorText)
			panic(newGateConfigError(fileName, errorText))
		}
		for pk, pv := range bodyMap {
			if _, ok := pk.(string); !ok {
				errorText := fmt.Sprintf("config error, key is not of type string: %v", pk)
				logger.Debugf(errorText)
				panic(newGateConfigError(fileName, errorText))
			}
			if _, ok := validPolicyKeys[pk.(string)]; !ok {
				errorText := fmt.Sprintf("config error, unknown key '%s' in policy '%s'", pk, name)
				logger.Debugf(errorText)
				panic(newGateConfigError(fileName, errorText))
			}
			if _, ok := pv.(int); !ok {
				errorText := fmt.Sprintf("config error, policy '%s' key '%s' must be an integer", name, pk)
				logger.Debugf(errorText)
				panic(newGateConfigError(fileName, errorText))
			}
		}
	}
}

// Load a single YAML config into this config.
// @param config specifies the parsed YAML to load.
func (this *gateConfigImpl) loadConfig(config GateConfigToLoad) {
	root := config.ConfigYaml

	for _, host := range root.AllowedRedirectHosts {
		if host == "" {
			panic(newGateConfigError(config.Name, "allowed_redirect_hosts entry cannot be empty"))
		}
		// Targets are matched on their bare host, so an entry carrying a
		// scheme, path or port could never match anything.
		if strings.ContainsAny(host, "/@?#: ") {
			panic(newGateConfigError(
				config.Name, fmt.Sprintf("allowed_redirect_hosts entry '%s' must be a bare host name", host)))
		}
		logger.Debugf("loading allowed redirect host: %s", host)
		this.redirectHosts[strings.ToLower(host)] = true
	}

	for _, origin := range root.AllowedOrigins {
		if origin == "" {
			panic(newGateConfigError(config.Name, "allowed_origins entry cannot be empty"))
		}
		// Browsers never send a trailing slash in Origin.
		if strings.HasSuffix(origin, "/") {
			panic(newGateConfigError(
				config.Name, fmt.Sprintf("allowed_origins entry '%s' must not end with a slash", origin)))
		}
		logger.Debugf("loading allowed origin: %s", origin)
		if !this.originSet[origin] {
			this.originSet[origin] = true
			this.allowedOrigins = append(this.allowedOrigins, origin)
		}
	}

	for name, yamlPolicy := range root.Policies {
		if !policyNameRegex.MatchString(name) {
			panic(newGateConfigError(config.Name, fmt.Sprintf("invalid policy name '%s'", name)))
		}
		if yamlPolicy.WindowSeconds <= 0 {
			panic(newGateConfigError(
				config.Name, fmt.Sprintf("policy '%s': window_seconds must be positive", name)))
		}

		logger.Debugf(
			"loading policy: name=%s permit_limit=%d window_seconds=%d queue_limit=%d",
			name, yamlPolicy.PermitLimit, yamlPolicy.WindowSeconds, yamlPolicy.QueueLimit)
		this.policies[name] = &Policy{
			Name:          name,
			Stats:         this.statsManager.NewAdmissionStats(name),
			PermitLimit:   yamlPolicy.PermitLimit,
			WindowSeconds: yamlPolicy.WindowSeconds,
			QueueLimit:    yamlPolicy.QueueLimit,
		}
	}
}

func (this *gateConfigImpl) Dump() string {
	var ret strings.Builder

	hosts := make([]string, 0, len(this.redirectHosts))
	for host := range this.redirectHosts {
		hosts = append(hosts, host)
	}
	sort.Strings(hosts)
	for _, host := range hosts {
		fmt.Fprintf(&ret, "allowed_redirect_host: %s\n", host)
	}

	for _, origin := range this.allowedOrigins {
		fmt.Fprintf(&ret, "allowed_origin: %s\n", origin)
	}

	names := make([]string, 0, len(this.policies))
	for name := range this.policies {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		policy := this.policies[name]
		fmt.Fprintf(&ret, "%s: permit_limit=%d window_seconds=%d queue_limit=%d\n",
			name, policy.PermitLimit, policy.WindowSeconds, policy.QueueLimit)
	}

	return ret.String()
}

func (this *gateConfigImpl) GetPolicy(ctx context.Context, name string) *Policy {
	policy := this.policies[name]
	if policy == nil {
		logger.Debugf("unknown policy '%s'", name)
	}
	return policy
}

func (this *gateConfigImpl) RedirectHostAllowed(host string) bool {
	return this.redirectHosts[strings.ToLower(host)]
}

func (this *gateConfigImpl) OriginAllowed(origin string) bool {
	return this.originSet[origin]
}

func (this *gateConfigImpl) AllowedOrigins() []string {
	return this.allowedOrigins
}

// ConfigFileContentToYaml converts a single YAML (string content) into a
// YamlRoot struct while validating yaml keys.
// @param fileName specifies the name of the file.
// @param content specifies the string content of the yaml file.
func ConfigFileContentToYaml(fileName, content string) *YamlRoot {
	// validate keys in config with generic map
	any := map[interface{}]interface{}{}
	err := yaml.Unmarshal([]byte(content), &any)
	if err != nil {
		errorText := fmt.Sprintf("error loading config file: %s", err.Error())
		logger.Debugf(errorText)
		panic(newGateConfigError(fileName, errorText))
	}
	validateYamlKeys(fileName, any)

	var root YamlRoot
	// Strict unmarshal also rejects duplicate policy names.
	err = yaml.UnmarshalStrict([]byte(content), &root)
	if err != nil {
		errorText := fmt.Sprintf("error loading config file: %s", err.Error())
		logger.Debugf(errorText)
		panic(newGateConfigError(fileName, errorText))
	}

	return &root
}

// Create gateway config from a parsed YAML file.
// @param config specifies the YAML file to load.
// @param statsManager supplies the stats manager policy stats are created on.
// @return a new config.
func NewGateConfigImpl(config GateConfigToLoad, statsManager stats.Manager) GateConfig {
	ret := &gateConfigImpl{
		policies:       map[string]*Policy{},
		redirectHosts:  map[string]bool{},
		allowedOrigins: nil,
		originSet:      map[string]bool{},
		statsManager:   statsManager,
	}
	ret.loadConfig(config)
	return ret
}

// LoadFile reads and loads the gateway config file at path.
// @throws GateConfigError when the file cannot be read or fails validation.
func LoadFile(path string, statsManager stats.Manager) GateConfig {
	contents, err := os.ReadFile(path)
	if err != nil {
		panic(GateConfigError(fmt.Sprintf("%s: unable to read config file: %s", path, err.Error())))
	}
	root := ConfigFileContentToYaml(path, string(contents))
	return NewGateConfigImpl(GateConfigToLoad{Name: path, ConfigYaml: root}, statsManager)
}
