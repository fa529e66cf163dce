package azuresql

import (
	"database/sql"
	"net"
	"net/url"
	"strconv"
	"time"

	_ "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/azuread"

	"github.com/cortexai/finops-insight/internal/config"
)

const appName = "finops-insight"

// driverAndDSN returns the database/sql driver name and connection URL for
// cfg. Azure AD auth uses the azuresql driver with the default credential
// chain (managed identity, environment, CLI).
func driverAndDSN(cfg config.AzureSQLConfig) (string, string) {
	port := cfg.Port
	if port == 0 {
		port = config.DefaultAzureSQLPort
	}

	q := url.Values{}
	q.Set("database", cfg.Database)
	q.Set("encrypt", "true")
	q.Set("app name", appName)

	u := &url.URL{
		Scheme: "sqlserver",
		Host:   net.JoinHostPort(cfg.Server, strconv.Itoa(port)),
	}

	driver := "sqlserver"
	if cfg.Auth == config.AzureAuthAzureAD {
		driver = azuread.DriverName
		q.Set("fedauth", "ActiveDirectoryDefault")
	} else {
		u.User = url.UserPassword(cfg.User, cfg.Password)
	}
	u.RawQuery = q.Encode()
	return driver, u.String()
}

// openDB opens the pool without connecting
func openDB(cfg config.AzureSQLConfig) (*sql.DB, error) {
	driver, dsn := driverAndDSN(cfg)
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}

	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = config.DefaultAzureSQLMaxConns
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxOpen / 2)
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}
