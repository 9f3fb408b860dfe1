package banking

// Selection picks which active connections a sync run covers.
// The concrete variants are SelectConnection, SelectKid and SelectAll.
type Selection interface {
	isSelection()
	String() string
}

type SelectConnection struct {
	ConnectionID string
}

type SelectKid struct {
	KidID string
}

type SelectAll struct{}

func (SelectConnection) isSelection() {}
func (SelectKid) isSelection()        {}
func (SelectAll) isSelection()        {}

func (s SelectConnection) String() string { return "connection " + s.ConnectionID }
func (s SelectKid) String() string        { return "kid " + s.KidID }
func (SelectAll) String() string          { return "all connections" }

// NewSelection maps request fields to a Selection. A connection id wins over a
// kid id, which wins over syncAll. With none of them set the request is rejected.
func NewSelection(connectionID, kidID string, syncAll bool) (Selection, error) {
	switch {
	case connectionID != "":
		return SelectConnection{ConnectionID: connectionID}, nil
	case kidID != "":
		return SelectKid{KidID: kidID}, nil
	case syncAll:
		return SelectAll{}, nil
	default:
		return nil, ErrInvalidSelection
	}
}
