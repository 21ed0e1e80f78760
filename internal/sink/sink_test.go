package sink

import (
	"strings"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"

	"itko.dev/internal/model"
)

func TestBuildInsertColumnOrderAndPlaceholders(t *testing.T) {
	rows := []model.DomainRow{
		{
			TS:          time.Unix(0, 0),
			Domain:      "a.example.com",
			BaseDomain:  "example.com",
			Fingerprint: "deadbeef",
			Issuer:      "CN=Test CA",
			Subject:     "CN=a.example.com",
			SAN:         []string{"a.example.com", "b.example.com"},
			NotBefore:   time.Unix(0, 0),
			NotAfter:    time.Unix(0, 0),
			LogName:     "argon2024",
		},
		{Domain: "c.example.com", BaseDomain: "example.com"},
	}

	query, args := buildInsert("domains", rows)

	if !strings.HasPrefix(query, "INSERT INTO domains (ts, domain, base_domain, fingerprint, issuer, subject, san, not_before, not_after, log_name) VALUES ") {
		t.Fatalf("unexpected query prefix: %s", query)
	}
	if strings.Count(query, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)") != 2 {
		t.Fatalf("expected 2 value groups, query: %s", query)
	}
	if len(args) != 2*len(model.SinkColumns) {
		t.Fatalf("got %d args, want %d", len(args), 2*len(model.SinkColumns))
	}
	if args[6] != `["a.example.com","b.example.com"]` {
		t.Errorf("san column = %v, want a JSON array", args[6])
	}
}

func TestBuildInsertEmptyRows(t *testing.T) {
	query, args := buildInsert("domains", nil)
	if len(args) != 0 {
		t.Errorf("args = %v, want none", args)
	}
	if !strings.HasSuffix(query, "VALUES ") {
		t.Errorf("query = %q", query)
	}
}

func TestRetryableDeadlockAndLockTimeout(t *testing.T) {
	for _, num := range []uint16{1213, 1205} {
		err := &mysql.MySQLError{Number: num, Message: "retry me"}
		if !Retryable(err) {
			t.Errorf("Number %d should be retryable", num)
		}
	}
}

func TestRetryableSyntaxErrorIsNot(t *testing.T) {
	err := &mysql.MySQLError{Number: 1064, Message: "syntax error"}
	if Retryable(err) {
		t.Error("syntax error should not be retryable")
	}
}

func TestRetryableConnectionFailureIs(t *testing.T) {
	if !Retryable(mysql.ErrInvalidConn) {
		t.Error("ErrInvalidConn should be retryable")
	}
}
