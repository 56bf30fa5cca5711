// Package exitlog persists the withdrawal journal: one append-only row
// per burned (token, amount) pair, queryable by the off-chain prover
// that releases the funds on the other ledger. Every record carries a
// deterministic digest usable as its exit ID.
package exitlog

import (
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	_ "modernc.org/sqlite"

	"github.com/bridgemint/bridgemint-go/types"
	"github.com/bridgemint/bridgemint-go/wire"
)

// Record is one journal row. Seq is the journal sequence assigned on
// append; Batch is the Seq of the first record of the same withdraw
// call, linking the rows of one batch withdrawal.
type Record struct {
	Seq    int64
	Batch  int64
	Burner types.Principal
	Token  types.TokenID
	Amount uint64
	Digest []byte
	At     time.Time
}

// exitSeal is the digested content of a record. The journal sequence
// makes the digest unique even across identical withdrawals.
type exitSeal struct {
	_      struct{} `cbor:",toarray"`
	Seq    int64
	Batch  int64
	Burner types.Principal
	Token  types.TokenID
	Amount uint64
}

// Journal is the sqlite-backed exit journal.
type Journal struct {
	db *sql.DB
}

// Open opens (creating if needed) the journal database at path.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening exit journal: %w", err)
	}

	j := &Journal{db: db}
	if err := j.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating exit journal: %w", err)
	}
	return j, nil
}

// migrate creates the schema if it doesn't exist. Token ID and amount
// are stored as decimal text: sqlite integers are signed 64 bit and
// both values use the full uint64 range.
func (j *Journal) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS exits (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		batch_seq INTEGER NOT NULL DEFAULT 0,
		burner TEXT NOT NULL,
		token TEXT NOT NULL,
		amount TEXT NOT NULL,
		digest BLOB,
		at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_exits_burner ON exits(burner);
	CREATE INDEX IF NOT EXISTS idx_exits_token ON exits(token);
	CREATE INDEX IF NOT EXISTS idx_exits_batch ON exits(batch_seq);
	`

	_, err := j.db.Exec(schema)
	return err
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// Append journals the burns of one withdraw call, all-or-nothing. Each
// (ids[i], amounts[i]) pair becomes one record; all records of the call
// share the batch sequence of the first.
func (j *Journal) Append(burner types.Principal, ids []types.TokenID, amounts []uint64) ([]Record, error) {
	if len(ids) == 0 {
		return nil, types.ErrInvalidArgumentf("nothing to journal")
	}
	if len(ids) != len(amounts) {
		return nil, types.ErrInvalidArgumentf("ids and amounts length mismatch: %d vs %d", len(ids), len(amounts))
	}

	tx, err := j.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("starting journal transaction: %w", err)
	}
	defer tx.Rollback()

	at := time.Now().UTC().Truncate(time.Second)
	records := make([]Record, 0, len(ids))
	var batch int64

	for i := range ids {
		res, err := tx.Exec(
			`INSERT INTO exits (batch_seq, burner, token, amount, at) VALUES (?, ?, ?, ?, ?)`,
			0, burner.Hex(), ids[i].String(), strconv.FormatUint(amounts[i], 10), at.Unix(),
		)
		if err != nil {
			return nil, fmt.Errorf("appending exit record: %w", err)
		}
		seq, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("reading exit sequence: %w", err)
		}
		if i == 0 {
			batch = seq
		}

		digest, err := wire.Digest(&exitSeal{
			Seq:    seq,
			Batch:  batch,
			Burner: burner,
			Token:  ids[i],
			Amount: amounts[i],
		})
		if err != nil {
			return nil, fmt.Errorf("sealing exit record: %w", err)
		}
		if _, err := tx.Exec(`UPDATE exits SET batch_seq = ?, digest = ? WHERE seq = ?`, batch, digest, seq); err != nil {
			return nil, fmt.Errorf("sealing exit record: %w", err)
		}

		records = append(records, Record{
			Seq:    seq,
			Batch:  batch,
			Burner: burner,
			Token:  ids[i],
			Amount: amounts[i],
			Digest: digest,
			At:     at,
		})
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing exit records: %w", err)
	}
	return records, nil
}

// ByBurner returns all records of one burner in journal order.
func (j *Journal) ByBurner(burner types.Principal) ([]Record, error) {
	return j.query(`SELECT seq, batch_seq, burner, token, amount, digest, at
		FROM exits WHERE burner = ? ORDER BY seq`, burner.Hex())
}

// ByToken returns all records of one token in journal order.
func (j *Journal) ByToken(id types.TokenID) ([]Record, error) {
	return j.query(`SELECT seq, batch_seq, burner, token, amount, digest, at
		FROM exits WHERE token = ? ORDER BY seq`, id.String())
}

// Since returns all records with a sequence greater than seq, in
// journal order. A prover resumes from the last sequence it has
// processed.
func (j *Journal) Since(seq int64) ([]Record, error) {
	return j.query(`SELECT seq, batch_seq, burner, token, amount, digest, at
		FROM exits WHERE seq > ? ORDER BY seq`, seq)
}

func (j *Journal) query(q string, args ...any) ([]Record, error) {
	rows, err := j.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying exit journal: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec           Record
			burner, token string
			amount        string
			at            int64
		)
		if err := rows.Scan(&rec.Seq, &rec.Batch, &burner, &token, &amount, &rec.Digest, &at); err != nil {
			return nil, fmt.Errorf("scanning exit record: %w", err)
		}
		rec.Burner = common.HexToAddress(burner)
		tokenID, err := strconv.ParseUint(token, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing token of exit %d: %w", rec.Seq, err)
		}
		rec.Token = types.TokenID(tokenID)
		rec.Amount, err = strconv.ParseUint(amount, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing amount of exit %d: %w", rec.Seq, err)
		}
		rec.At = time.Unix(at, 0).UTC()
		records = append(records, rec)
	}
	return records, rows.Err()
}
