package config

import (
	"context"
	"strings"
)

// SecretProvider resolves secret values by SSM parameter path.
type SecretProvider interface {
	// GetParametersBatch returns path -> plaintext for every path it could
	// resolve. Paths it cannot find are omitted from the map.
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}

// requiredSecrets are the variables every deployed binary needs that must
// never live in plain Lambda environment. When neither the variable nor its
// _SSM_PARAM pointer is set, the loader looks them up at ParameterPath.
var requiredSecrets = []string{
	"DATABASE_URL",
	"HABR_APIKEY",
}

// ParameterPath is where a secret lives in Parameter Store:
// HABR_APIKEY in prod is /prod/giftclub/habr/apikey.
func ParameterPath(env, variable string) string {
	name := strings.ReplaceAll(strings.ToLower(variable), "_", "/")
	return "/" + env + "/giftclub/" + name
}

// conventionalBindings adds a binding at ParameterPath for each required
// secret that is neither set directly nor already bound by a pointer.
func conventionalBindings(env string, deps loaderDeps, bound []ssmBinding) []ssmBinding {
	var out []ssmBinding
	for _, variable := range requiredSecrets {
		if _, ok := deps.lookupEnv(variable); ok {
			continue
		}
		if hasTarget(bound, variable) {
			continue
		}
		out = append(out, ssmBinding{target: variable, path: ParameterPath(env, variable)})
	}
	return out
}

func hasTarget(bindings []ssmBinding, target string) bool {
	for _, b := range bindings {
		if b.target == target {
			return true
		}
	}
	return false
}
