package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the on-disk encoding.
//
// The file is a sequence of field 1 entries, each a length-delimited device
// message:
//
//	1 device_id (varint)
//	2 name      (bytes)
//	3 address   (bytes, 6)
//	4 secret    (bytes, 16 or 32)
const (
	fieldDevice   protowire.Number = 1
	fieldDeviceID protowire.Number = 1
	fieldName     protowire.Number = 2
	fieldAddress  protowire.Number = 3
	fieldSecret   protowire.Number = 4
)

// FileStore persists records to a single file in protobuf wire format.
// SaveAll writes a temporary file and renames it over the old one.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a store backed by path. The file need not exist yet.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// LoadAll reads all records. A missing file is an empty registry.
func (f *FileStore) LoadAll() ([]Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return unmarshalRecords(data)
}

// SaveAll atomically replaces the file contents.
func (f *FileStore) SaveAll(records []Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data := marshalRecords(records)

	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

func marshalRecords(records []Record) []byte {
	var out []byte
	for i := range records {
		out = protowire.AppendTag(out, fieldDevice, protowire.BytesType)
		out = protowire.AppendBytes(out, marshalRecord(&records[i]))
	}
	return out
}

func marshalRecord(r *Record) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldDeviceID, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.DeviceID))
	b = protowire.AppendTag(b, fieldName, protowire.BytesType)
	b = protowire.AppendString(b, r.Name)
	b = protowire.AppendTag(b, fieldAddress, protowire.BytesType)
	b = protowire.AppendBytes(b, r.Address[:])
	b = protowire.AppendTag(b, fieldSecret, protowire.BytesType)
	b = protowire.AppendBytes(b, r.Secret)
	return b
}

func unmarshalRecords(data []byte) ([]Record, error) {
	var records []Record
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", ErrCorruptStore, protowire.ParseError(n))
		}
		data = data[n:]

		if num != fieldDevice || typ != protowire.BytesType {
			n = protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", ErrCorruptStore, protowire.ParseError(n))
			}
			data = data[n:]
			continue
		}

		msg, n := protowire.ConsumeBytes(data)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", ErrCorruptStore, protowire.ParseError(n))
		}
		data = data[n:]

		rec, err := unmarshalRecord(msg)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func unmarshalRecord(data []byte) (Record, error) {
	var r Record
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return r, fmt.Errorf("%w: %v", ErrCorruptStore, protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case num == fieldDeviceID && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return r, fmt.Errorf("%w: %v", ErrCorruptStore, protowire.ParseError(n))
			}
			if v > 0xFFFF {
				return r, fmt.Errorf("%w: device ID %d out of range", ErrCorruptStore, v)
			}
			r.DeviceID = uint16(v)
			data = data[n:]

		case num == fieldName && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return r, fmt.Errorf("%w: %v", ErrCorruptStore, protowire.ParseError(n))
			}
			r.Name = v
			data = data[n:]

		case num == fieldAddress && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return r, fmt.Errorf("%w: %v", ErrCorruptStore, protowire.ParseError(n))
			}
			if len(v) != AddressSize {
				return r, fmt.Errorf("%w: address length %d", ErrCorruptStore, len(v))
			}
			copy(r.Address[:], v)
			data = data[n:]

		case num == fieldSecret && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return r, fmt.Errorf("%w: %v", ErrCorruptStore, protowire.ParseError(n))
			}
			r.Secret = append([]byte(nil), v...)
			data = data[n:]

		default:
			n = protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return r, fmt.Errorf("%w: %v", ErrCorruptStore, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return r, nil
}
