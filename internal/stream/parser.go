package stream

import (
	"regexp"
	"strconv"

	"loud-plotter/internal/model"
)

// 字段之间是任意长度的非数字串
var nonDigits = regexp.MustCompile(`[^0-9]+`)

// Parse 从一行中解析 Record，要求恰好三个整数：time, window, value
// 只校验个数和整数合法性，零值原样透传
func Parse(line string) (model.Record, error) {
	var ints [3]int64
	n := 0
	for _, frag := range nonDigits.Split(line, -1) {
		if frag == "" {
			continue
		}
		if n >= len(ints) {
			n++
			continue // 继续计数，错误信息里给出实际个数
		}
		v, err := strconv.ParseInt(frag, 10, 64)
		if err != nil {
			return model.Record{}, &MalformedRecordError{Line: line, Fields: n, Err: err}
		}
		ints[n] = v
		n++
	}
	if n != len(ints) {
		return model.Record{}, &MalformedRecordError{Line: line, Fields: n}
	}
	return model.Record{Time: ints[0], Window: model.Window(ints[1]), Value: ints[2]}, nil
}
