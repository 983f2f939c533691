package model

import "fmt"

// -----------------------------------------------------------------------------
// Relational Types
// -----------------------------------------------------------------------------

// Instrument is a registered ticker and its data availability window.
type Instrument struct {
	ID             int64  // Surrogate key, stable for the instrument's lifetime
	Ticker         string // Unique business key (e.g., "AAPL")
	Name           string // Display name
	Vendor         string // Data vendor
	Stype          string // Security type
	Dataset        string // Source feed
	FirstAvailable int64  // Earliest ts_event ingested (ns), 0 if none
	LastAvailable  int64  // Latest ts_event ingested (ns), 0 if none
	Active         bool   // Soft-delete flag
}

// HasData reports whether any tick has been ingested for the instrument.
func (i Instrument) HasData() bool {
	return i.FirstAvailable != 0 || i.LastAvailable != 0
}

// -----------------------------------------------------------------------------
// Time-Series Types
// -----------------------------------------------------------------------------

// Action is the book event type, stored as its byte code.
type Action byte

const (
	ActionAdd    Action = 'A'
	ActionCancel Action = 'C'
	ActionModify Action = 'M'
	ActionClear  Action = 'R'
	ActionTrade  Action = 'T'
	ActionFill   Action = 'F'
	ActionNone   Action = 'N'
)

// Valid reports whether a is a known action code.
func (a Action) Valid() bool {
	switch a {
	case ActionAdd, ActionCancel, ActionModify, ActionClear, ActionTrade, ActionFill, ActionNone:
		return true
	}
	return false
}

func (a Action) String() string {
	return string(rune(a))
}

// MarshalText encodes the action as its one-letter code.
func (a Action) MarshalText() ([]byte, error) {
	return []byte{byte(a)}, nil
}

// UnmarshalText decodes a one-letter action code.
func (a *Action) UnmarshalText(text []byte) error {
	if len(text) != 1 || !Action(text[0]).Valid() {
		return fmt.Errorf("invalid action %q", text)
	}
	*a = Action(text[0])
	return nil
}

// Side is the book side of an event, stored as its byte code.
type Side byte

const (
	SideAsk  Side = 'A'
	SideBid  Side = 'B'
	SideNone Side = 'N'
)

// Valid reports whether s is a known side code.
func (s Side) Valid() bool {
	return s == SideAsk || s == SideBid || s == SideNone
}

func (s Side) String() string {
	return string(rune(s))
}

// MarshalText encodes the side as its one-letter code.
func (s Side) MarshalText() ([]byte, error) {
	return []byte{byte(s)}, nil
}

// UnmarshalText decodes a one-letter side code.
func (s *Side) UnmarshalText(text []byte) error {
	if len(text) != 1 || !Side(text[0]).Valid() {
		return fmt.Errorf("invalid side %q", text)
	}
	*s = Side(text[0])
	return nil
}

// Tick is one market-by-price event together with the book levels it reports.
type Tick struct {
	ID            int64  // Surrogate key assigned by the ledger, 0 before insert
	InstrumentID  int64  // Owning instrument
	TsEvent       int64  // Exchange event time (ns)
	TsRecv        int64  // Capture time (ns)
	TsInDelta     int32  // Signed latency offset (ns)
	Price         int64  // Fixed point, see PriceScale
	Size          uint32 // Quantity
	Action        Action
	Side          Side
	Flags         uint8  // Feed-specific bitmask
	Sequence      uint32 // Venue sequence number
	Discriminator uint32 // Separates otherwise-identical events in one message
	OrderBookHash string // Hex SHA-256 of Levels, see OrderBookHash

	Levels []DepthLevel // Book snapshot at this event
}

// Key returns the tick's natural key.
func (t Tick) Key() NaturalKey {
	return NaturalKey{
		InstrumentID:  t.InstrumentID,
		TsEvent:       t.TsEvent,
		Price:         t.Price,
		Size:          t.Size,
		Flags:         t.Flags,
		Sequence:      t.Sequence,
		OrderBookHash: t.OrderBookHash,
		TsRecv:        t.TsRecv,
		Action:        t.Action,
		Side:          t.Side,
		Discriminator: t.Discriminator,
	}
}

// Top returns the depth-0 level, if the tick reports one.
func (t Tick) Top() (DepthLevel, bool) {
	for _, l := range t.Levels {
		if l.Depth == 0 {
			return l, true
		}
	}
	return DepthLevel{}, false
}

// NaturalKey is the uniqueness tuple of a tick. Two events with equal keys
// are the same upstream event.
type NaturalKey struct {
	InstrumentID  int64
	TsEvent       int64
	Price         int64
	Size          uint32
	Flags         uint8
	Sequence      uint32
	OrderBookHash string
	TsRecv        int64
	Action        Action
	Side          Side
	Discriminator uint32
}

func (k NaturalKey) String() string {
	return fmt.Sprintf("instrument=%d ts_event=%d seq=%d px=%d sz=%d action=%s side=%s flags=%d ts_recv=%d disc=%d hash=%s",
		k.InstrumentID, k.TsEvent, k.Sequence, k.Price, k.Size, k.Action, k.Side, k.Flags, k.TsRecv, k.Discriminator, k.OrderBookHash)
}

// DepthLevel is one rung of the book at a tick. Nil fields mean the level
// does not exist on that side at this event.
type DepthLevel struct {
	Depth int32 // 0 = best

	BidPx *int64
	BidSz *uint32
	BidCt *uint32

	AskPx *int64
	AskSz *uint32
	AskCt *uint32
}
