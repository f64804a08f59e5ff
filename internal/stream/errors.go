package stream

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrMalformedRecord 行中没有恰好三个整数
var ErrMalformedRecord = errors.New("malformed record")

// MalformedRecordError 解析失败的行，调用方丢弃该行后继续
type MalformedRecordError struct {
	Line   string
	Fields int   // 实际找到的整数个数
	Err    error // 整数溢出等底层错误，可能为 nil
}

func (e *MalformedRecordError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed record %q: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("malformed record %q: want 3 integers, got %d", e.Line, e.Fields)
}

func (e *MalformedRecordError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrMalformedRecord
}

// Is 让 errors.Is(err, ErrMalformedRecord) 对所有解析失败都成立
func (e *MalformedRecordError) Is(target error) bool {
	return target == ErrMalformedRecord
}

// DecodeError chunk 不是合法的 UTF-8 文本，整块丢弃
type DecodeError struct {
	Offset int // 第一个非法字节在 chunk 中的位置
	Len    int // chunk 长度
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("invalid utf-8 at byte %d of %d-byte chunk", e.Offset, e.Len)
}
