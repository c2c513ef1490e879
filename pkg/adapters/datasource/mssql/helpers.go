package mssql

import (
	"strconv"
	"strings"
)

// isStringType returns true if the type is a string type in SQL Server.
func isStringType(sqlType string) bool {
	switch strings.ToUpper(sqlType) {
	case "CHAR", "NCHAR", "VARCHAR", "NVARCHAR", "TEXT", "NTEXT", "XML":
		return true
	}
	return false
}

// isDecimalType returns true for exact numeric types the driver returns as text.
func isDecimalType(sqlType string) bool {
	switch strings.ToUpper(sqlType) {
	case "DECIMAL", "NUMERIC", "MONEY", "SMALLMONEY":
		return true
	}
	return false
}

func isUniqueIdentifier(sqlType string) bool {
	return strings.EqualFold(sqlType, "UNIQUEIDENTIFIER")
}

// parseDecimal returns an integer when the value is integral, a float when
// it parses, and the raw text otherwise.
func parseDecimal(s string) any {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
