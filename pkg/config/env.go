package config

// EnvPrefix is the envconfig prefix for all DukaPesa settings.
const EnvPrefix = "DUKAPESA"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvDBDSN  = "DUKAPESA_DB_DSN"
	EnvDBHost = "DUKAPESA_DB_HOST"
	EnvDBUser = "DUKAPESA_DB_USER"
	EnvDBName = "DUKAPESA_DB_NAME"
)

var componentDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
