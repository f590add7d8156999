package codec

import (
	"encoding/binary"
	"fmt"
	"reflect"
)

// Unmarshaler is implemented by types that decode themselves. It receives the
// remaining input and returns how many octets it consumed.
type Unmarshaler interface {
	UnmarshalCodec(data []byte) (int, error)
}

var unmarshalerType = reflect.TypeOf((*Unmarshaler)(nil)).Elem()

// Unmarshal decodes data into dst, which must be a non-nil pointer. All of
// data must be consumed.
func Unmarshal(data []byte, dst any) error {
	v := reflect.ValueOf(dst)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return ErrInvalidPointer
	}
	d := decoder{data: data}
	if err := d.decode(v.Elem()); err != nil {
		return err
	}
	if d.pos != len(d.data) {
		return ErrTrailingBytes
	}
	return nil
}

type decoder struct {
	data []byte
	pos  int
}

func (d *decoder) read(n int) ([]byte, error) {
	if n < 0 || len(d.data)-d.pos < n {
		return nil, ErrUnexpectedEOF
	}
	b := d.data[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

func (d *decoder) readNatural() (uint64, error) {
	x, n, err := ReadNatural(d.data[d.pos:])
	if err != nil {
		return 0, err
	}
	d.pos += n
	return x, nil
}

// readLength reads a natural that counts items of at least one octet each,
// so it can never exceed what is left of the input.
func (d *decoder) readLength() (int, error) {
	l, err := d.readNatural()
	if err != nil {
		return 0, err
	}
	if l > uint64(len(d.data)-d.pos) {
		return 0, ErrLengthTooLarge
	}
	return int(l), nil
}

func (d *decoder) decode(v reflect.Value) error {
	if v.CanAddr() && v.Addr().Type().Implements(unmarshalerType) {
		n, err := v.Addr().Interface().(Unmarshaler).UnmarshalCodec(d.data[d.pos:])
		if err != nil {
			return err
		}
		d.pos += n
		return nil
	}

	switch v.Kind() {
	case reflect.Bool:
		b, err := d.read(1)
		if err != nil {
			return err
		}
		switch b[0] {
		case 0:
			v.SetBool(false)
		case 1:
			v.SetBool(true)
		default:
			return ErrInvalidBool
		}
	case reflect.Uint8:
		b, err := d.read(1)
		if err != nil {
			return err
		}
		v.SetUint(uint64(b[0]))
	case reflect.Uint16:
		b, err := d.read(2)
		if err != nil {
			return err
		}
		v.SetUint(uint64(binary.LittleEndian.Uint16(b)))
	case reflect.Uint32:
		b, err := d.read(4)
		if err != nil {
			return err
		}
		v.SetUint(uint64(binary.LittleEndian.Uint32(b)))
	case reflect.Uint64:
		b, err := d.read(8)
		if err != nil {
			return err
		}
		v.SetUint(binary.LittleEndian.Uint64(b))
	case reflect.Uint:
		x, err := d.readNatural()
		if err != nil {
			return err
		}
		v.SetUint(x)
	case reflect.Int:
		x, err := d.readNatural()
		if err != nil {
			return err
		}
		v.SetInt(int64(x))
	case reflect.String:
		l, err := d.readLength()
		if err != nil {
			return err
		}
		b, err := d.read(l)
		if err != nil {
			return err
		}
		v.SetString(string(b))
	case reflect.Array:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			b, err := d.read(v.Len())
			if err != nil {
				return err
			}
			reflect.Copy(v, reflect.ValueOf(b))
			return nil
		}
		for i := 0; i < v.Len(); i++ {
			if err := d.decode(v.Index(i)); err != nil {
				return err
			}
		}
	case reflect.Slice:
		l, err := d.readLength()
		if err != nil {
			return err
		}
		if v.Type().Elem().Kind() == reflect.Uint8 {
			b, err := d.read(l)
			if err != nil {
				return err
			}
			out := reflect.MakeSlice(v.Type(), l, l)
			reflect.Copy(out, reflect.ValueOf(b))
			v.Set(out)
			return nil
		}
		out := reflect.MakeSlice(v.Type(), l, l)
		for i := 0; i < l; i++ {
			if err := d.decode(out.Index(i)); err != nil {
				return err
			}
		}
		v.Set(out)
	case reflect.Map:
		l, err := d.readLength()
		if err != nil {
			return err
		}
		out := reflect.MakeMapWithSize(v.Type(), l)
		for i := 0; i < l; i++ {
			key := reflect.New(v.Type().Key()).Elem()
			if err := d.decode(key); err != nil {
				return err
			}
			elem := reflect.New(v.Type().Elem()).Elem()
			if err := d.decode(elem); err != nil {
				return err
			}
			out.SetMapIndex(key, elem)
		}
		v.Set(out)
	case reflect.Ptr:
		b, err := d.read(1)
		if err != nil {
			return err
		}
		if b[0] == 0 {
			v.Set(reflect.Zero(v.Type()))
			return nil
		}
		elem := reflect.New(v.Type().Elem())
		if err := d.decode(elem.Elem()); err != nil {
			return err
		}
		v.Set(elem)
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			field := t.Field(i)
			if !field.IsExported() || field.Tag.Get("codec") == "-" {
				continue
			}
			if err := d.decode(v.Field(i)); err != nil {
				return fmt.Errorf(ErrDecodingField, field.Name, err)
			}
		}
	default:
		return fmt.Errorf(ErrUnsupportedType, v.Type())
	}
	return nil
}
