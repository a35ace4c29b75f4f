// Package option provides composable query modifiers for gorm statements.
package option

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
)

type QueryOption interface {
	Apply(db *gorm.DB) *gorm.DB
}

type Operator string

const (
	EQ  Operator = "="
	GT  Operator = ">"
	GTE Operator = ">="
	LT  Operator = "<"
	LTE Operator = "<="
)

// Condition applies a single field comparison.
type Condition struct {
	Field    string
	Operator Operator
	Value    any
}

func ApplyOperator(c Condition) QueryOption {
	return conditionOption{cond: c}
}

type conditionOption struct {
	cond Condition
}

func (o conditionOption) Apply(db *gorm.DB) *gorm.DB {
	field := strings.TrimSpace(o.cond.Field)
	if field == "" {
		return db
	}
	return db.Where(fmt.Sprintf("%s %s ?", field, o.cond.Operator), o.cond.Value)
}

// QuerySortBy orders results by an allow-listed column.
type QuerySortBy struct {
	Allow map[string]bool
	Field string
	Desc  bool
}

func WithSortBy(s QuerySortBy) QueryOption {
	return sortOption{sort: s}
}

type sortOption struct {
	sort QuerySortBy
}

func (o sortOption) Apply(db *gorm.DB) *gorm.DB {
	field := strings.TrimSpace(o.sort.Field)
	if field == "" {
		field = "created_at"
	}
	if len(o.sort.Allow) > 0 && !o.sort.Allow[field] {
		field = "created_at"
	}
	dir := "ASC"
	if o.sort.Desc {
		dir = "DESC"
	}
	return db.Order(fmt.Sprintf("%s %s", field, dir))
}

func WithLimit(limit int) QueryOption {
	return limitOption{limit: limit}
}

type limitOption struct {
	limit int
}

func (o limitOption) Apply(db *gorm.DB) *gorm.DB {
	if o.limit <= 0 {
		return db
	}
	return db.Limit(o.limit)
}
