package stream

import (
	"bytes"
	"iter"
	"unicode/utf8"
)

// Assembler 把传输层的字节块重组成以 '\n' 结尾的完整行
type Assembler struct {
	buf  []byte // 已解码、尚未输出的文本
	tail []byte // 被 chunk 边界截断的多字节字符前缀
}

// NewAssembler 创建空的 Assembler
func NewAssembler() *Assembler {
	return &Assembler{}
}

// Feed 解码并追加 chunk，返回惰性的完整行序列 (包含结尾的 '\n')
// 非法 UTF-8 返回 *DecodeError，chunk 整块丢弃，已缓冲的文本不变
// 上一个 chunk 末尾的半个字符无法再被补全，一并丢弃
// 序列中未取出的行保留在缓冲区，下一次 Feed 返回的序列会继续产出
func (a *Assembler) Feed(chunk []byte) (iter.Seq[string], error) {
	data := make([]byte, 0, len(a.tail)+len(chunk))
	data = append(data, a.tail...)
	data = append(data, chunk...)

	cut := incompleteSuffix(data)
	if !utf8.Valid(data[:cut]) {
		// 偏移相对 chunk；落在残留前缀里时记为 0
		off := max(invalidOffset(data[:cut])-len(a.tail), 0)
		a.tail = a.tail[:0]
		return nil, &DecodeError{Offset: off, Len: len(chunk)}
	}

	a.buf = append(a.buf, data[:cut]...)
	a.tail = append(a.tail[:0], data[cut:]...)
	return a.lines, nil
}

// lines 逐行取出缓冲区中的完整行
func (a *Assembler) lines(yield func(string) bool) {
	for {
		i := bytes.IndexByte(a.buf, '\n')
		if i < 0 {
			return
		}
		line := string(a.buf[:i+1])
		a.buf = a.buf[i+1:]
		if !yield(line) {
			return
		}
	}
}

// Pending 返回缓冲区中尚未组成完整行的字节数
func (a *Assembler) Pending() int {
	return len(a.buf) + len(a.tail)
}

// Reset 清空缓冲区
func (a *Assembler) Reset() {
	a.buf = nil
	a.tail = nil
}

// incompleteSuffix 返回 data 中最后一个不完整字符之前的长度
func incompleteSuffix(data []byte) int {
	for i := len(data) - 1; i >= 0 && i >= len(data)-utf8.UTFMax+1; i-- {
		if !utf8.RuneStart(data[i]) {
			continue
		}
		if !utf8.FullRune(data[i:]) {
			return i
		}
		break
	}
	return len(data)
}

// invalidOffset 第一个非法字节的位置，仅用于错误信息
func invalidOffset(data []byte) int {
	for i := 0; i < len(data); {
		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size <= 1 {
			return i
		}
		i += size
	}
	return 0
}
