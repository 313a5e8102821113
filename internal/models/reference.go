package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewReference builds a human readable identifier such as SES-20261015-4F2A9C
func NewReference(prefix string, t time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:6])
	return fmt.Sprintf("%s-%s-%s", prefix, t.UTC().Format("20060102"), suffix)
}
