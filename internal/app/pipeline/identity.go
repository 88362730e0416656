package pipeline

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/brct-james/titans-insider/internal/domain"
	"github.com/brct-james/titans-insider/internal/ports"
)

const (
	IDStrategyContent = "content"
	IDStrategyRandom  = "random"
)

// idSep is the unit separator, which never appears in upstream text fields.
const idSep = 0x1f

// listingNamespace scopes content-derived ids to this table.
var listingNamespace = uuid.MustParse("9b0c5c7e-3f0e-4e43-9a57-4f1f1d6c2a11")

// ContentIDs derives a UUIDv5 from every attribute that identifies one
// observation of a listing, so re-polling an unchanged listing yields the same
// row id while two listings of the same item never share one.
type ContentIDs struct{}

func (ContentIDs) NewID(l *domain.Listing) string {
	var b strings.Builder
	b.WriteString(strconv.FormatInt(int64(l.ID), 10))
	for _, part := range []string{l.UID, l.TType} {
		b.WriteByte(idSep)
		b.WriteString(part)
	}
	for _, tag := range []*string{l.Tag1, l.Tag2, l.Tag3} {
		b.WriteByte(idSep)
		if tag != nil {
			b.WriteByte('=')
			b.WriteString(*tag)
		}
	}
	for _, part := range []string{l.CreatedAt, l.UpdatedAt} {
		b.WriteByte(idSep)
		b.WriteString(part)
	}
	b.WriteByte(idSep)
	b.WriteString(strconv.FormatInt(int64(l.RequestCycle), 10))
	return uuid.NewSHA1(listingNamespace, []byte(b.String())).String()
}

func (ContentIDs) Name() string { return IDStrategyContent }

// RandomIDs assigns a fresh UUIDv4 per mapping.
type RandomIDs struct{}

func (RandomIDs) NewID(*domain.Listing) string { return uuid.NewString() }

func (RandomIDs) Name() string { return IDStrategyRandom }

// NewIDGenerator resolves an id strategy name.
func NewIDGenerator(strategy string) (ports.IDGenerator, error) {
	switch strategy {
	case "", IDStrategyContent:
		return ContentIDs{}, nil
	case IDStrategyRandom:
		return RandomIDs{}, nil
	default:
		return nil, &domain.ConfigError{Field: "sniffer.id_strategy", Err: fmt.Errorf("unknown strategy %q", strategy)}
	}
}

var (
	_ ports.IDGenerator = ContentIDs{}
	_ ports.IDGenerator = RandomIDs{}
)
