package utils

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/AlecAivazis/survey/v2"
	"golang.org/x/term"

	"github.com/picogrid/flock-simulations/pkg/simulation"
)

// SkipPromptsEnv disables interactive prompts when set to "true"
const SkipPromptsEnv = "FLOCKSIM_SKIP_PROMPTS"

// IsInteractive reports whether prompts can be shown: stdin and stdout are
// terminals and prompts are not disabled.
func IsInteractive() bool {
	if os.Getenv(SkipPromptsEnv) == "true" {
		return false
	}
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// ResolveParameters returns parameter values without prompting: the
// FLOCKSIM_<NAME> environment variable if set and parseable, else the
// default. Parameters with neither are left out.
func ResolveParameters(params []simulation.Parameter) (map[string]interface{}, error) {
	result := make(map[string]interface{})

	for _, param := range params {
		if envValue := os.Getenv(envKey(param)); envValue != "" {
			value, err := parseEnvValue(envValue, param)
			if err != nil {
				return nil, fmt.Errorf("invalid %s: %w", envKey(param), err)
			}
			result[param.Name] = value
			continue
		}
		if param.Default != nil {
			value, err := normalize(param.Default, param)
			if err != nil {
				return nil, fmt.Errorf("invalid default for %s: %w", param.Name, err)
			}
			result[param.Name] = value
			continue
		}
		if param.Required {
			return nil, fmt.Errorf("required parameter %s not provided and no default available", param.Name)
		}
	}

	return result, nil
}

func envKey(param simulation.Parameter) string {
	return "FLOCKSIM_" + strings.ToUpper(param.Name)
}

// normalize converts a default value into the type a prompt would return
func normalize(value interface{}, param simulation.Parameter) (interface{}, error) {
	if s, ok := value.(string); ok {
		return parseEnvValue(s, param)
	}
	switch param.Type {
	case "integer":
		return toInt(value), nil
	case "float":
		return toFloat64(value), nil
	}
	return value, nil
}

// PromptForParameters prompts the user for simulation parameters. Without a
// terminal the values are resolved from the environment and defaults.
func PromptForParameters(params []simulation.Parameter) (map[string]interface{}, error) {
	if !IsInteractive() {
		return ResolveParameters(params)
	}

	result := make(map[string]interface{})

	for _, param := range params {
		value, err := promptForParameter(param)
		if err != nil {
			return nil, fmt.Errorf("failed to get %s: %w", param.Name, err)
		}
		result[param.Name] = value
	}

	return result, nil
}

// promptForParameter asks for one value, defaulting to the env value when it parses
func promptForParameter(param simulation.Parameter) (interface{}, error) {
	if envValue := os.Getenv(envKey(param)); envValue != "" {
		if parsed, err := parseEnvValue(envValue, param); err == nil {
			param.Default = parsed
		}
	}

	switch {
	case param.Type == "boolean":
		return promptBoolean(param)
	case param.Type == "string" && len(param.Options) > 0:
		return promptSelect(param)
	case param.Type == "string", param.Type == "integer", param.Type == "float", param.Type == "duration":
		return promptText(param)
	default:
		return nil, fmt.Errorf("unsupported parameter type: %s", param.Type)
	}
}

// parseEnvValue parses a raw value according to the parameter type
func parseEnvValue(value string, param simulation.Parameter) (interface{}, error) {
	switch param.Type {
	case "integer":
		return strconv.Atoi(value)
	case "float":
		return strconv.ParseFloat(value, 64)
	case "string":
		return value, nil
	case "boolean":
		return strconv.ParseBool(value)
	case "duration":
		return time.ParseDuration(value)
	default:
		return nil, fmt.Errorf("unsupported parameter type: %s", param.Type)
	}
}

// checkRange enforces Min and Max on numeric values
func checkRange(value interface{}, param simulation.Parameter) error {
	var v float64
	switch n := value.(type) {
	case int:
		v = float64(n)
	case float64:
		v = n
	default:
		return nil
	}
	if param.Min != nil && v < toFloat64(param.Min) {
		return fmt.Errorf("value must be at least %v", param.Min)
	}
	if param.Max != nil && v > toFloat64(param.Max) {
		return fmt.Errorf("value must be at most %v", param.Max)
	}
	return nil
}

func promptText(param simulation.Parameter) (interface{}, error) {
	message := param.Description
	if param.Type == "duration" {
		message += " (e.g. 0s, 50ms, 1s)"
	}

	prompt := &survey.Input{Message: message}
	if param.Default != nil {
		prompt.Default = fmt.Sprintf("%v", param.Default)
	}

	validate := func(ans interface{}) error {
		str, _ := ans.(string)
		if str == "" {
			if param.Required || param.Type != "string" {
				return fmt.Errorf("value is required")
			}
			return nil
		}
		value, err := parseEnvValue(str, param)
		if err != nil {
			return fmt.Errorf("invalid %s", param.Type)
		}
		return checkRange(value, param)
	}

	var answer string
	if err := survey.AskOne(prompt, &answer, survey.WithValidator(validate)); err != nil {
		return nil, err
	}
	return parseEnvValue(answer, param)
}

func promptSelect(param simulation.Parameter) (string, error) {
	prompt := &survey.Select{
		Message: param.Description,
		Options: param.Options,
	}
	if param.Default != nil {
		prompt.Default = fmt.Sprintf("%v", param.Default)
	}

	var answer string
	if err := survey.AskOne(prompt, &answer); err != nil {
		return "", err
	}
	return answer, nil
}

func promptBoolean(param simulation.Parameter) (bool, error) {
	def, _ := param.Default.(bool)
	prompt := &survey.Confirm{
		Message: param.Description,
		Default: def,
	}

	var answer bool
	if err := survey.AskOne(prompt, &answer); err != nil {
		return false, err
	}
	return answer, nil
}

func toInt(v interface{}) int {
	switch val := v.(type) {
	case int:
		return val
	case int64:
		return int(val)
	case float64:
		return int(val)
	default:
		return 0
	}
}

func toFloat64(v interface{}) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case int64:
		return float64(val)
	default:
		return 0
	}
}
