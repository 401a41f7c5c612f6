package report

import (
	"time"

	"github.com/tinylib/msgp/msgp"
)

var (
	_ msgp.Marshaler   = (*Entry)(nil)
	_ msgp.Unmarshaler = (*Entry)(nil)
)

// MarshalMsg appends the MessagePack encoding of e to b.
func (e *Entry) MarshalMsg(b []byte) ([]byte, error) {
	o := msgp.AppendMapHeader(b, 16)
	o = msgp.AppendString(o, "id")
	o = msgp.AppendString(o, e.ID)
	o = msgp.AppendString(o, "kind")
	o = msgp.AppendUint8(o, uint8(e.Kind))
	o = msgp.AppendString(o, "time")
	o = msgp.AppendTime(o, e.Time)
	o = msgp.AppendString(o, "session")
	o = msgp.AppendString(o, e.SessionID)
	o = msgp.AppendString(o, "from")
	o = msgp.AppendString(o, e.FromDomain)
	o = msgp.AppendString(o, "record_domain")
	o = msgp.AppendString(o, e.RecordDomain)
	o = msgp.AppendString(o, "result")
	o = msgp.AppendString(o, e.Result)
	o = msgp.AppendString(o, "policy")
	o = msgp.AppendString(o, e.Policy)
	o = msgp.AppendString(o, "disposition")
	o = msgp.AppendString(o, e.Disposition)
	o = msgp.AppendString(o, "sampled")
	o = msgp.AppendBool(o, e.Sampled)

	o = msgp.AppendString(o, "dkim")
	o = msgp.AppendArrayHeader(o, uint32(len(e.DKIM)))
	for i := range e.DKIM {
		o = e.DKIM[i].appendMsg(o)
	}
	o = msgp.AppendString(o, "spf")
	if e.SPF == nil {
		o = msgp.AppendNil(o)
	} else {
		o = e.SPF.appendMsg(o)
	}

	o = msgp.AppendString(o, "addresses")
	o = appendStrings(o, e.Addresses)
	o = msgp.AppendString(o, "interval")
	o = msgp.AppendInt64(o, int64(e.Interval))
	o = msgp.AppendString(o, "fo")
	o = appendStrings(o, e.FailureOptions)
	o = msgp.AppendString(o, "rf")
	o = appendStrings(o, e.Formats)
	return o, nil
}

// UnmarshalMsg decodes e from bts and returns the remaining bytes. Unknown
// fields are skipped.
func (e *Entry) UnmarshalMsg(bts []byte) ([]byte, error) {
	n, bts, err := msgp.ReadMapHeaderBytes(bts)
	if err != nil {
		return bts, msgp.WrapError(err)
	}
	for range n {
		var field []byte
		field, bts, err = msgp.ReadMapKeyZC(bts)
		if err != nil {
			return bts, msgp.WrapError(err)
		}
		switch name := msgp.UnsafeString(field); name {
		case "id":
			e.ID, bts, err = msgp.ReadStringBytes(bts)
		case "kind":
			var k uint8
			k, bts, err = msgp.ReadUint8Bytes(bts)
			e.Kind = Kind(k)
		case "time":
			e.Time, bts, err = msgp.ReadTimeBytes(bts)
		case "session":
			e.SessionID, bts, err = msgp.ReadStringBytes(bts)
		case "from":
			e.FromDomain, bts, err = msgp.ReadStringBytes(bts)
		case "record_domain":
			e.RecordDomain, bts, err = msgp.ReadStringBytes(bts)
		case "result":
			e.Result, bts, err = msgp.ReadStringBytes(bts)
		case "policy":
			e.Policy, bts, err = msgp.ReadStringBytes(bts)
		case "disposition":
			e.Disposition, bts, err = msgp.ReadStringBytes(bts)
		case "sampled":
			e.Sampled, bts, err = msgp.ReadBoolBytes(bts)
		case "dkim":
			var sz uint32
			sz, bts, err = msgp.ReadArrayHeaderBytes(bts)
			if err != nil {
				return bts, msgp.WrapError(err, name)
			}
			e.DKIM = make([]AuthResult, sz)
			for i := range e.DKIM {
				if bts, err = e.DKIM[i].unmarshalMsg(bts); err != nil {
					return bts, msgp.WrapError(err, name, i)
				}
			}
		case "spf":
			if msgp.IsNil(bts) {
				bts, err = msgp.ReadNilBytes(bts)
				e.SPF = nil
				break
			}
			e.SPF = &AuthResult{}
			bts, err = e.SPF.unmarshalMsg(bts)
		case "addresses":
			e.Addresses, bts, err = readStrings(bts)
		case "interval":
			var d int64
			d, bts, err = msgp.ReadInt64Bytes(bts)
			e.Interval = time.Duration(d)
		case "fo":
			e.FailureOptions, bts, err = readStrings(bts)
		case "rf":
			e.Formats, bts, err = readStrings(bts)
		default:
			bts, err = msgp.Skip(bts)
		}
		if err != nil {
			return bts, msgp.WrapError(err, msgp.UnsafeString(field))
		}
	}
	return bts, nil
}

func (r *AuthResult) appendMsg(b []byte) []byte {
	o := msgp.AppendMapHeader(b, 4)
	o = msgp.AppendString(o, "domain")
	o = msgp.AppendString(o, r.Domain)
	o = msgp.AppendString(o, "selector")
	o = msgp.AppendString(o, r.Selector)
	o = msgp.AppendString(o, "result")
	o = msgp.AppendString(o, r.Result)
	o = msgp.AppendString(o, "aligned")
	o = msgp.AppendBool(o, r.Aligned)
	return o
}

func (r *AuthResult) unmarshalMsg(bts []byte) ([]byte, error) {
	n, bts, err := msgp.ReadMapHeaderBytes(bts)
	if err != nil {
		return bts, err
	}
	for range n {
		var field []byte
		field, bts, err = msgp.ReadMapKeyZC(bts)
		if err != nil {
			return bts, err
		}
		switch msgp.UnsafeString(field) {
		case "domain":
			r.Domain, bts, err = msgp.ReadStringBytes(bts)
		case "selector":
			r.Selector, bts, err = msgp.ReadStringBytes(bts)
		case "result":
			r.Result, bts, err = msgp.ReadStringBytes(bts)
		case "aligned":
			r.Aligned, bts, err = msgp.ReadBoolBytes(bts)
		default:
			bts, err = msgp.Skip(bts)
		}
		if err != nil {
			return bts, msgp.WrapError(err, msgp.UnsafeString(field))
		}
	}
	return bts, nil
}

func appendStrings(b []byte, l []string) []byte {
	o := msgp.AppendArrayHeader(b, uint32(len(l)))
	for _, s := range l {
		o = msgp.AppendString(o, s)
	}
	return o
}

func readStrings(bts []byte) ([]string, []byte, error) {
	sz, bts, err := msgp.ReadArrayHeaderBytes(bts)
	if err != nil || sz == 0 {
		return nil, bts, err
	}
	l := make([]string, sz)
	for i := range l {
		if l[i], bts, err = msgp.ReadStringBytes(bts); err != nil {
			return nil, bts, err
		}
	}
	return l, bts, nil
}
