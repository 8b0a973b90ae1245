// Package entry holds the Entry record and the message kinds that mutate the
// entry collection, together with their self-describing binary codec.
package entry

// Entry is a single record in the replicated entry collection. Entries are
// immutable once created; ID is unique across the collection.
type Entry struct {
	ID      string `json:"id"      cramberry:"1"`
	Creator string `json:"creator" cramberry:"2"`
	Name    string `json:"name"    cramberry:"3"`
}

// FromCreate returns the entry a successful MsgCreateEntry produces once the
// node has settled its id.
func FromCreate(m *MsgCreateEntry, id string) Entry {
	return Entry{ID: id, Creator: m.Creator, Name: m.Name}
}
