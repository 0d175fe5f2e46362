package recordstore

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/erazemk/kitstok/internal/model"
)

// Column names written in the header row. The first four are the names the
// original deployment's files use.
const (
	colLot       = "lot_numarasi"
	colTest      = "test"
	colQuantity  = "test_sayisi"
	colExpiry    = "son_kullanma_tarihi"
	colAlertSent = "alert_sent"
	colStatus    = "status"
)

var header = []string{colLot, colTest, colQuantity, colExpiry, colAlertSent, colStatus}

// aliases maps accepted header names to canonical column names.
var aliases = map[string]string{
	colLot:        colLot,
	"lot_number":  colLot,
	colTest:       colTest,
	"test_name":   colTest,
	colQuantity:   colQuantity,
	"quantity":    colQuantity,
	colExpiry:     colExpiry,
	"expiry_date": colExpiry,
	colAlertSent:  colAlertSent,
	colStatus:     colStatus,
}

var requiredColumns = []string{colLot, colTest, colQuantity, colExpiry}

// Decode parses tabular text into kits. Rows without a status column get
// defaultStatus. An unparseable expiry date is kept verbatim in ExpiryRaw.
func Decode(data []byte, defaultStatus model.Status) ([]model.Kit, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if len(bytes.TrimSpace(data)) == 0 {
		return []model.Kit{}, nil
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1

	head, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	index := make(map[string]int, len(head))
	for i, name := range head {
		canonical, ok := aliases[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			continue
		}
		if _, dup := index[canonical]; dup {
			return nil, fmt.Errorf("duplicate column %q", name)
		}
		index[canonical] = i
	}
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("missing column %q", col)
		}
	}

	kits := []model.Kit{}
	for line := 2; ; line++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if isBlank(rec) {
			continue
		}

		kit, err := decodeRow(rec, index, defaultStatus)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		kits = append(kits, kit)
	}
	return kits, nil
}

func decodeRow(rec []string, index map[string]int, defaultStatus model.Status) (model.Kit, error) {
	field := func(col string) string {
		i, ok := index[col]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	kit := model.Kit{
		LotNumber: field(colLot),
		TestName:  field(colTest),
	}

	qty, err := parseQuantity(field(colQuantity))
	if err != nil {
		return model.Kit{}, err
	}
	kit.Quantity = qty

	if raw := field(colExpiry); raw != "" {
		if d, err := model.ParseDate(raw); err == nil {
			kit.Expiry = d
		} else {
			kit.ExpiryRaw = raw
		}
	}

	if raw := field(colAlertSent); raw != "" {
		sent, err := strconv.ParseBool(raw)
		if err != nil {
			return model.Kit{}, fmt.Errorf("invalid alert_sent %q", raw)
		}
		kit.AlertSent = sent
	}

	kit.Status, err = model.ParseStatus(field(colStatus), defaultStatus)
	if err != nil {
		return model.Kit{}, err
	}
	return kit, nil
}

// parseQuantity accepts integers, including the "100.0" form pandas writes
// for integer columns that once held a missing value.
func parseQuantity(s string) (int, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	if whole, frac, ok := strings.Cut(s, "."); ok && strings.Trim(frac, "0") == "" {
		if n, err := strconv.Atoi(whole); err == nil {
			return n, nil
		}
	}
	return 0, fmt.Errorf("invalid quantity %q", s)
}

func isBlank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// Encode serializes kits with the canonical header.
func Encode(kits []model.Kit) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("writing header: %w", err)
	}
	for _, k := range kits {
		rec := []string{
			k.LotNumber,
			k.TestName,
			strconv.Itoa(k.Quantity),
			k.ExpiryText(),
			strconv.FormatBool(k.AlertSent),
			string(k.Status),
		}
		if err := w.Write(rec); err != nil {
			return nil, fmt.Errorf("writing %s: %w", k.Key(), err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flushing csv: %w", err)
	}
	return buf.Bytes(), nil
}
