package newznab

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	shellquote "github.com/kballard/go-shellquote"
)

var (
	ErrConfigMissing = errors.New("newznab config does not exist")
	ErrInvalidConfig = errors.New("invalid newznab config")
)

// DBConfig holds the connection details newznab keeps in config.php.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
}

const requiredKeys = 5

// ReadDBConfig extracts the database settings from newznab's config.php. Relevant lines
// look like `define('DB_HOST', 'localhost');`. A repeated key overwrites the earlier value
// until all five keys have been seen.
func ReadDBConfig(path string) (DBConfig, error) {
	var cfg DBConfig
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, fmt.Errorf("%w: %s", ErrConfigMissing, path)
		}
		return cfg, err
	}

	found := map[string]string{}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		words, err := shellquote.Split(scanner.Text())
		if err != nil || len(words) < 2 {
			continue
		}
		if key := matchKey(words[0]); key != "" {
			found[key] = trimSyntax(words[1])
		}
		if len(found) == requiredKeys {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return cfg, err
	}
	if len(found) != requiredKeys {
		return cfg, fmt.Errorf("%w: %s is missing database settings", ErrInvalidConfig, path)
	}

	port, err := strconv.Atoi(found["port"])
	if err != nil {
		return cfg, fmt.Errorf("%w: %s has a non-numeric DB_PORT %q", ErrInvalidConfig, path, found["port"])
	}
	cfg.Host = found["host"]
	cfg.Port = port
	cfg.User = found["user"]
	cfg.Password = found["password"]
	cfg.Name = found["name"]
	return cfg, nil
}

var keyMarkers = []struct {
	marker string
	key    string
}{
	{"DB_HOST", "host"},
	{"DB_PORT", "port"},
	{"DB_USER", "user"},
	{"DB_PASSWORD", "password"},
	{"DB_NAME", "name"},
}

func matchKey(word string) string {
	for _, m := range keyMarkers {
		if strings.Contains(word, m.marker) {
			return m.key
		}
	}
	return ""
}

// trimSyntax drops the `);` left on the value token once the quotes are gone.
func trimSyntax(word string) string {
	if len(word) < 2 {
		return ""
	}
	return word[:len(word)-2]
}

// DSN renders a connection string for the given database/sql driver name.
func (c DBConfig) DSN(driver string, loc *time.Location) (string, error) {
	if loc == nil {
		loc = time.Local
	}
	switch driver {
	case "mysql":
		mc := mysql.NewConfig()
		mc.User = c.User
		mc.Passwd = c.Password
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
		mc.DBName = c.Name
		mc.ParseTime = true
		mc.Loc = loc
		mc.Timeout = 5 * time.Second
		return mc.FormatDSN(), nil
	case "pgx":
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(c.User, c.Password),
			Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
			Path:     "/" + c.Name,
			RawQuery: "sslmode=disable",
		}
		return u.String(), nil
	case "sqlite":
		return c.Name, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", driver)
	}
}
