package schema

import "strings"

// ColumnKind is the dialect-neutral kind of a physical column.
type ColumnKind int

const (
	KindIdentity ColumnKind = iota
	KindText
	KindReal
	KindInteger
	KindTimestamp
	KindFlag
	KindKey
)

func (k ColumnKind) String() string {
	switch k {
	case KindIdentity:
		return "identity"
	case KindText:
		return "text"
	case KindReal:
		return "real"
	case KindInteger:
		return "integer"
	case KindTimestamp:
		return "timestamp"
	case KindFlag:
		return "flag"
	case KindKey:
		return "key"
	}
	return "unknown"
}

// ColumnDef describes one physical column. Default is a literal SQL default
// ("'NONE'", "0") or empty. KindKey columns hold short indexed text.
type ColumnDef struct {
	Name    string
	Kind    ColumnKind
	Default string
	Primary bool
	Unique  bool
}

// Built-in column names present on every physical table.
const (
	ColID                = "id"
	ColCreatedAt         = "created_at"
	ColRecurrenceRule    = "recurrence_rule"
	ColRecurrenceEndDate = "recurrence_end_date"
	ColRecurrenceDays    = "recurrence_days"
	ColEndDateTime       = "end_date_time"
	ColIsAllDay          = "is_all_day"
)

// IdentityColumn is the auto-assigned primary key.
var IdentityColumn = ColumnDef{Name: ColID, Kind: KindIdentity}

// BookkeepingColumns are the built-in columns after the identity, in
// creation order.
var BookkeepingColumns = []ColumnDef{
	{Name: ColCreatedAt, Kind: KindTimestamp},
	{Name: ColRecurrenceRule, Kind: KindText, Default: "'NONE'"},
	{Name: ColRecurrenceEndDate, Kind: KindText},
	{Name: ColRecurrenceDays, Kind: KindText},
	{Name: ColEndDateTime, Kind: KindText},
	{Name: ColIsAllDay, Kind: KindFlag, Default: "0"},
}

// WritableBuiltins are the built-in columns a row payload may set.
var WritableBuiltins = []string{
	ColRecurrenceRule,
	ColRecurrenceEndDate,
	ColRecurrenceDays,
	ColEndDateTime,
	ColIsAllDay,
}

// Reserved reports whether key names a built-in column.
func Reserved(key string) bool {
	if key == ColID {
		return true
	}
	for _, c := range BookkeepingColumns {
		if c.Name == key {
			return true
		}
	}
	return false
}

// maxKeyLen keeps derived keys within the identifier limits of every
// supported dialect (postgres: 63 bytes).
const maxKeyLen = 63

// SafeName derives a storage key from a display name: spaces become
// underscores, the result is lowercased, everything outside [a-z0-9_] is
// dropped, a leading digit gets an "f_" prefix and an empty result becomes
// "field". The function is pure and idempotent.
func SafeName(name string) string {
	lowered := strings.ToLower(strings.ReplaceAll(name, " ", "_"))

	var b strings.Builder
	b.Grow(len(lowered))
	for i := 0; i < len(lowered); i++ {
		c := lowered[i]
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '_' {
			b.WriteByte(c)
		}
	}
	safe := b.String()
	if safe == "" {
		return "field"
	}
	if safe[0] >= '0' && safe[0] <= '9' {
		safe = "f_" + safe
	}
	if len(safe) > maxKeyLen {
		safe = safe[:maxKeyLen]
	}
	return safe
}
