package model

import (
	"context"
	"slices"
)

// Column names of the user table, in storage order.
const (
	ColumnUsername    = "Username"
	ColumnPassword    = "Password"
	ColumnPageID      = "PageID"
	ColumnAccessToken = "AccessToken"
)

// Columns is the fixed user table schema.
var Columns = []string{ColumnUsername, ColumnPassword, ColumnPageID, ColumnAccessToken}

// UserRecord is a single row of the user table.
type UserRecord struct {
	Username    string
	Password    string
	PageID      string
	AccessToken string
}

// Table is the ordered set of user records. It is always read and written as one unit.
type Table struct {
	Records []UserRecord
}

// Len returns the number of rows.
func (t Table) Len() int {
	return len(t.Records)
}

// Find returns the first record with the given username.
func (t Table) Find(username string) (UserRecord, bool) {
	for _, r := range t.Records {
		if r.Username == username {
			return r, true
		}
	}
	return UserRecord{}, false
}

// Append adds a record to the end of the table without touching
// the backing array of the slice it was read from.
func (t *Table) Append(record UserRecord) {
	t.Records = append(slices.Clip(t.Records), record)
}

// Snapshot is a table together with the remote revision it was read from.
// Revision is empty when the remote object does not exist yet.
type Snapshot struct {
	Table    Table
	Revision string
}

// TableStore gives get-all and replace-all access to the remote user table.
type TableStore interface {
	Fetch(ctx context.Context) (Snapshot, error)
	Replace(ctx context.Context, table Table, baseRevision string) (string, error)
}

// TableCodec converts a table to and from its stored byte form.
type TableCodec interface {
	Encode(table Table) ([]byte, error)
	Decode(data []byte) (Table, error)
}

// UserService registers and looks up users.
type UserService interface {
	Register(ctx context.Context, record UserRecord) error
	Authenticate(ctx context.Context, username string) (UserRecord, error)
	Initialize(ctx context.Context) (Snapshot, error)
}
