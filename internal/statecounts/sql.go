package statecounts

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// outputPlaceholder is substituted with the resolved UNLOAD destination
// at submission time.
const outputPlaceholder = "{OUTPUT}"

// BuildUnloadSQL renders the per-state accredited facility count as an
// UNLOAD so Athena streams the result files straight to S3. UNLOAD has
// no header-row option for TEXTFILE, so the header is prepended through
// the _order column and a UNION ALL.
func BuildUnloadSQL(cfg Config, today time.Time) string {
	return strings.TrimSpace(fmt.Sprintf(`
UNLOAD (
  SELECT *
  FROM (
    SELECT 0 AS _order, 'state' AS state, 'accredited_facilities' AS accredited_facilities
    UNION ALL
    SELECT 1 AS _order, state, CAST(accredited_facilities AS VARCHAR)
    FROM (
      SELECT r.location.state AS state,
             COUNT(DISTINCT r.facility_id) AS accredited_facilities
      FROM %s.%s r
      CROSS JOIN UNNEST(r.accreditations) AS t(a)
      WHERE CAST(a.valid_until AS DATE) >= DATE '%s'
      GROUP BY r.location.state
    ) s
  ) out
  ORDER BY _order, state
)
TO '%s'
WITH (format='%s', field_delimiter='%s', compression='%s')`,
		cfg.Database, cfg.Table, today.Format("2006-01-02"),
		outputPlaceholder, cfg.UnloadFormat, cfg.UnloadDelimiter, cfg.UnloadCompression))
}

// ResultsPrefixForObject derives the destination for one source object:
//
//	{base}/{source-bucket}/{urlencoded-key}/{YYYY-MM-DD}/
//
// The date partition means a re-run on a later day lands in a fresh
// prefix, while same-day retries land on the same one and stay
// idempotent.
func ResultsPrefixForObject(base, srcBucket, srcKey string, today time.Time) string {
	enc := strings.ReplaceAll(url.QueryEscape(srcKey), "+", "%20")
	return fmt.Sprintf("%s/%s/%s/%s/",
		strings.TrimRight(base, "/"), srcBucket, enc, today.Format("2006-01-02"))
}

// IdempotencyToken is a pure function of the triggering object and the
// exact SQL text, so duplicate trigger deliveries hash to the same
// ClientRequestToken and Athena collapses them into one execution.
func IdempotencyToken(srcBucket, srcKey, sql string) string {
	sum := sha256.Sum256([]byte(srcBucket + "|" + srcKey + "|" + sql))
	return hex.EncodeToString(sum[:])
}

// SplitS3URI splits "s3://bucket/some/prefix/" into bucket and key prefix.
func SplitS3URI(uri string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(uri, "s3://")
	if !ok {
		return "", "", fmt.Errorf("not an s3 uri: %q", uri)
	}
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("no bucket in s3 uri: %q", uri)
	}
	return bucket, key, nil
}
