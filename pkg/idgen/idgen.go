package idgen

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
)

const (
	PrefixPartner    = "pn"
	PrefixEnrollment = "pge"
	PrefixInvoice    = "inv"
	PrefixPayout     = "po"
	PrefixCommission = "cm"
)

// New returns a lowercase ULID prefixed with prefix and an underscore.
func New(prefix string) string {
	id := strings.ToLower(ulid.Make().String())
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}

// NewNode builds the snowflake node used for internal row ids.
func NewNode() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}
