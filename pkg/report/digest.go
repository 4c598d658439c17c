package report

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/zhengshuai-xiao/BlockDedup/internal"
)

// canonicalJSON encodes fields with every object key in sorted order.
// encoding/json sorts map keys but writes struct fields in declaration order,
// so structs are turned into maps first.
func canonicalJSON(fields map[string]interface{}) ([]byte, error) {
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var generic interface{}
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}

// digestOf hashes the canonical JSON encoding of fields.
func digestOf(fields map[string]interface{}) (string, error) {
	data, err := canonicalJSON(fields)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Digest covers the headline numbers of a run.
func Digest(r *RunReport) string {
	d, err := digestOf(map[string]interface{}{
		"timestamp":         r.Timestamp.UTC().Format(time.RFC3339Nano),
		"file_size":         r.SourceSize,
		"blocks_processed":  r.Totals.BlocksProcessed,
		"unique_blocks":     r.Totals.UniqueBlocks,
		"elapsed_seconds":   r.ElapsedSeconds,
		"blocks_per_second": r.BlocksPerSecond,
	})
	if err != nil {
		// only plain numbers and strings go in
		panic(err)
	}
	return d
}

// SessionDigest identifies a run before any block is read. The random seed
// makes two runs over the same input distinct.
func SessionDigest(start time.Time, source string, size int64, conf *internal.Config) (string, error) {
	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		return "", fmt.Errorf("failed to read random seed: %w", err)
	}
	return sessionDigest(start, source, size, conf, hex.EncodeToString(seed))
}

func sessionDigest(start time.Time, source string, size int64, conf *internal.Config, seed string) (string, error) {
	fields := map[string]interface{}{
		"start_time":  start.UTC().Format(time.RFC3339Nano),
		"file":        source,
		"size":        size,
		"random_seed": seed,
	}
	if conf != nil {
		fields["config"] = conf
	}
	d, err := digestOf(fields)
	if err != nil {
		return "", fmt.Errorf("failed to encode session: %w", err)
	}
	return d, nil
}

// Verify recomputes the digest of r and compares it with the stored one.
func Verify(r *RunReport) error {
	if r.Digest == "" {
		return fmt.Errorf("%w: report %s carries no digest", internal.ErrDigestBroken, r.RunID)
	}
	if newer, err := internal.NewerThanRunning(r.Version); err != nil {
		logger.Warnf("report %s has unparsable version %q: %v", r.RunID, r.Version, err)
	} else if newer {
		logger.Warnf("report %s was written by a newer version %s", r.RunID, r.Version)
	}
	if got := Digest(r); got != r.Digest {
		return fmt.Errorf("%w: report %s has %s, computed %s", internal.ErrDigestBroken, r.RunID,
			internal.ShortHex(r.Digest, 12), internal.ShortHex(got, 12))
	}
	return nil
}
