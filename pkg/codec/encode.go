package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"reflect"
	"sort"
)

// Marshaler is implemented by types that encode themselves.
type Marshaler interface {
	MarshalCodec() ([]byte, error)
}

var marshalerType = reflect.TypeOf((*Marshaler)(nil)).Elem()

// Marshal encodes v. Fixed-width unsigned integers are little endian,
// int/uint and all lengths use the natural encoding, structs are the
// concatenation of their exported fields (a `codec:"-"` tag skips a field)
// and maps are written in ascending order of their encoded keys.
func Marshal(v any) ([]byte, error) {
	e := encoder{}
	if err := e.encode(reflect.ValueOf(v)); err != nil {
		return nil, err
	}
	return e.buf, nil
}

type encoder struct {
	buf []byte
}

func (e *encoder) encode(v reflect.Value) error {
	if !v.IsValid() {
		return fmt.Errorf(ErrUnsupportedType, "nil")
	}
	if v.Type().Implements(marshalerType) && (v.Kind() != reflect.Ptr || !v.IsNil()) {
		b, err := v.Interface().(Marshaler).MarshalCodec()
		if err != nil {
			return err
		}
		e.buf = append(e.buf, b...)
		return nil
	}

	switch v.Kind() {
	case reflect.Bool:
		if v.Bool() {
			e.buf = append(e.buf, 1)
		} else {
			e.buf = append(e.buf, 0)
		}
	case reflect.Uint8:
		e.buf = append(e.buf, uint8(v.Uint()))
	case reflect.Uint16:
		e.buf = binary.LittleEndian.AppendUint16(e.buf, uint16(v.Uint()))
	case reflect.Uint32:
		e.buf = binary.LittleEndian.AppendUint32(e.buf, uint32(v.Uint()))
	case reflect.Uint64:
		e.buf = binary.LittleEndian.AppendUint64(e.buf, v.Uint())
	case reflect.Uint:
		e.buf = AppendNatural(e.buf, v.Uint())
	case reflect.Int:
		if v.Int() < 0 {
			return fmt.Errorf(ErrUnsupportedType, "negative int")
		}
		e.buf = AppendNatural(e.buf, uint64(v.Int()))
	case reflect.String:
		e.buf = AppendNatural(e.buf, uint64(v.Len()))
		e.buf = append(e.buf, v.String()...)
	case reflect.Array:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			for i := 0; i < v.Len(); i++ {
				e.buf = append(e.buf, uint8(v.Index(i).Uint()))
			}
			return nil
		}
		for i := 0; i < v.Len(); i++ {
			if err := e.encode(v.Index(i)); err != nil {
				return err
			}
		}
	case reflect.Slice:
		e.buf = AppendNatural(e.buf, uint64(v.Len()))
		if v.Type().Elem().Kind() == reflect.Uint8 {
			e.buf = append(e.buf, v.Bytes()...)
			return nil
		}
		for i := 0; i < v.Len(); i++ {
			if err := e.encode(v.Index(i)); err != nil {
				return err
			}
		}
	case reflect.Map:
		return e.encodeMap(v)
	case reflect.Ptr:
		if v.IsNil() {
			e.buf = append(e.buf, 0)
			return nil
		}
		e.buf = append(e.buf, 1)
		return e.encode(v.Elem())
	case reflect.Struct:
		return e.encodeStruct(v)
	default:
		return fmt.Errorf(ErrUnsupportedType, v.Type())
	}
	return nil
}

func (e *encoder) encodeStruct(v reflect.Value) error {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() || field.Tag.Get("codec") == "-" {
			continue
		}
		if err := e.encode(v.Field(i)); err != nil {
			return fmt.Errorf(ErrEncodingField, field.Name, err)
		}
	}
	return nil
}

func (e *encoder) encodeMap(v reflect.Value) error {
	type entry struct {
		key   []byte
		value reflect.Value
	}
	entries := make([]entry, 0, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		ke := encoder{}
		if err := ke.encode(iter.Key()); err != nil {
			return err
		}
		entries = append(entries, entry{key: ke.buf, value: iter.Value()})
	}
	sort.Slice(entries, func(i, j int) bool {
		return bytes.Compare(entries[i].key, entries[j].key) < 0
	})

	e.buf = AppendNatural(e.buf, uint64(len(entries)))
	for _, en := range entries {
		e.buf = append(e.buf, en.key...)
		if err := e.encode(en.value); err != nil {
			return err
		}
	}
	return nil
}
