package compiler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
)

// PlaceholderStyle selects the bind-parameter syntax of compiled SQL.
type PlaceholderStyle string

const (
	PlaceholderDollar   PlaceholderStyle = "dollar"   // $1 (postgres, pgx)
	PlaceholderQuestion PlaceholderStyle = "question" // ? (mysql, sqlite)
	PlaceholderNamed    PlaceholderStyle = "named"    // :arg1 (oracle)
	PlaceholderAt       PlaceholderStyle = "at"       // @p1 (sqlserver)
)

// ParsePlaceholderStyle parses a style name. Empty means dollar.
func ParsePlaceholderStyle(s string) (PlaceholderStyle, error) {
	switch style := PlaceholderStyle(strings.ToLower(strings.TrimSpace(s))); style {
	case "":
		return PlaceholderDollar, nil
	case PlaceholderDollar, PlaceholderQuestion, PlaceholderNamed, PlaceholderAt:
		return style, nil
	default:
		return "", fmt.Errorf("invalid placeholder style %q", s)
	}
}

// PlaceholderForDriver returns the style used by a database/sql driver name.
// Unknown drivers get dollar placeholders.
func PlaceholderForDriver(driverName string) PlaceholderStyle {
	switch sqlx.BindType(driverName) {
	case sqlx.QUESTION:
		return PlaceholderQuestion
	case sqlx.NAMED:
		return PlaceholderNamed
	case sqlx.AT:
		return PlaceholderAt
	default:
		return PlaceholderDollar
	}
}

func (s PlaceholderStyle) bindType() int {
	switch s {
	case PlaceholderQuestion:
		return sqlx.QUESTION
	case PlaceholderNamed:
		return sqlx.NAMED
	case PlaceholderAt:
		return sqlx.AT
	default:
		return sqlx.DOLLAR
	}
}

func dollarPlaceholders(start, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = "$" + strconv.Itoa(start+i)
	}
	return out
}

// placeholders returns n bind placeholders in style s, numbered from 1 where
// the style is numbered.
func (s PlaceholderStyle) placeholders(n int) []string {
	if n == 0 {
		return []string{}
	}
	return strings.Fields(sqlx.Rebind(s.bindType(), strings.Repeat("? ", n)))
}
