package validator

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
)

// checksumMismatchError reports that a row's stored checksum doesn't match
// its contents: the row is corrupt or was written by an incompatible
// schema version. The damage is scoped to this one owner, so callers
// demote the row to Unknown rather than discarding the whole load.
type checksumMismatchError struct {
	owner       string
	got, stored string
}

func (e *checksumMismatchError) Error() string {
	return fmt.Sprintf("owner %q: checksum mismatch (got %s, stored %s)", e.owner, e.got, e.stored)
}

// ownerRow is the flat, SQL-scannable shape of a Record. checksum guards
// against a cache file written by an incompatible schema version silently
// deserializing into garbage Records; it covers every field except itself.
type ownerRow struct {
	owner       string
	status      int64
	displayName sql.NullString
	reason      sql.NullString
	fetchedAt   string
	checksum    string
}

func recordToRow(r Record) ownerRow {
	row := ownerRow{
		owner:     r.Owner,
		status:    int64(r.Status),
		fetchedAt: r.FetchedAt.UTC().Format("2006-01-02 15:04:05"),
	}
	if r.DisplayName != "" {
		row.displayName = sql.NullString{String: r.DisplayName, Valid: true}
	}
	if r.Reason != "" {
		row.reason = sql.NullString{String: r.Reason, Valid: true}
	}
	row.checksum = checksum(row)
	return row
}

func rowToRecord(row ownerRow) (Record, error) {
	// The driver may hand fetched_at back in a different layout than the one
	// recordToRow wrote, so bring it back to that layout before checksumming.
	if t, err := parseSQLiteTime(row.fetchedAt); err == nil {
		row.fetchedAt = t.UTC().Format("2006-01-02 15:04:05")
	}
	if got := checksum(row); got != row.checksum {
		return Record{Owner: row.owner, Status: Unknown}, &checksumMismatchError{owner: row.owner, got: got, stored: row.checksum}
	}
	r := Record{
		Owner:  row.owner,
		Status: Status(row.status),
	}
	if row.displayName.Valid {
		r.DisplayName = row.displayName.String
	}
	if row.reason.Valid {
		r.Reason = row.reason.String
	}
	t, err := parseSQLiteTime(row.fetchedAt)
	if err != nil {
		return Record{}, fmt.Errorf("owner %q: %w", row.owner, err)
	}
	r.FetchedAt = t
	return r, nil
}

func checksum(row ownerRow) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%d|%s|%s|%s", row.owner, row.status, row.displayName.String, row.reason.String, row.fetchedAt)
	return hex.EncodeToString(h.Sum(nil)[:8])
}

func scanOwnerRow(rows interface {
	Scan(dest ...any) error
}) (Record, error) {
	var row ownerRow
	if err := rows.Scan(&row.owner, &row.status, &row.displayName, &row.reason, &row.fetchedAt, &row.checksum); err != nil {
		return Record{}, fmt.Errorf("scan owner record: %w", err)
	}
	return rowToRecord(row)
}
