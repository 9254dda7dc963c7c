package logging

import (
	"log/slog"
	"strings"
)

// FieldDBConn carries a Forms database connection string. Handlers mask its
// password.
const FieldDBConn = "db_conn"

// secretKeys are dropped to a fixed placeholder by both handlers.
var secretKeys = map[string]struct{}{
	"api_token":     {},
	"authorization": {},
	"password":      {},
}

const redacted = "***"

// RedactConn hides the password of a user/password@db connection string.
func RedactConn(conn string) string {
	user, rest, ok := strings.Cut(conn, "/")
	if !ok {
		return conn
	}
	db := ""
	if at := strings.LastIndexByte(rest, '@'); at >= 0 {
		db = rest[at:]
	}
	return user + "/" + redacted + db
}

// redactAttr masks credentials by attribute key. Only the last dotted
// segment of a grouped key is considered.
func redactAttr(key string, value slog.Value) slog.Value {
	if i := strings.LastIndexByte(key, '.'); i >= 0 {
		key = key[i+1:]
	}
	key = strings.ToLower(key)
	if key == FieldDBConn {
		return slog.StringValue(RedactConn(attrString(value)))
	}
	if _, ok := secretKeys[key]; ok {
		return slog.StringValue(redacted)
	}
	return value
}
