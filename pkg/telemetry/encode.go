package telemetry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// EncodeLine renders payload as one flat JSON object followed by a newline:
// stream, sequence and timestamp first, then every field in order.
// Unsupported field types panic: that is a collector bug, not a runtime
// condition.
func EncodeLine(payload Payload) []byte {
	var buf bytes.Buffer
	buf.WriteString(`{"stream":`)
	writeString(&buf, payload.Stream)
	buf.WriteString(`,"sequence":`)
	buf.WriteString(strconv.FormatInt(payload.Sequence, 10))
	buf.WriteString(`,"timestamp":`)
	buf.WriteString(strconv.FormatInt(payload.Timestamp, 10))

	for _, field := range payload.Fields {
		buf.WriteByte(',')
		writeString(&buf, field.Key)
		buf.WriteByte(':')
		writeValue(&buf, payload.Stream, field)
	}

	buf.WriteString("}\n")
	return buf.Bytes()
}

func writeString(buf *bytes.Buffer, s string) {
	encoded, _ := json.Marshal(s)
	buf.Write(encoded)
}

func writeValue(buf *bytes.Buffer, stream string, field Field) {
	switch v := field.Value.(type) {
	case int:
		buf.WriteString(strconv.FormatInt(int64(v), 10))
	case int32:
		buf.WriteString(strconv.FormatInt(int64(v), 10))
	case int64:
		buf.WriteString(strconv.FormatInt(v, 10))
	case float32:
		writeFloat(buf, stream, field.Key, float64(v), 32)
	case float64:
		writeFloat(buf, stream, field.Key, v, 64)
	case bool:
		buf.WriteString(strconv.FormatBool(v))
	case string:
		writeString(buf, v)
	default:
		panic(fmt.Sprintf("telemetry: unsupported field type %T for %s.%s", field.Value, stream, field.Key))
	}
}

func writeFloat(buf *bytes.Buffer, stream, key string, v float64, bits int) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		panic(fmt.Sprintf("telemetry: non-finite float for %s.%s", stream, key))
	}
	buf.WriteString(strconv.FormatFloat(v, 'g', -1, bits))
}
