package model

// Accept 把一条 Record 累加到对应窗口的 Bucket
// 窗口未知时静默丢弃：不修改任何 Bucket，也不产生事件
func Accept(rec Record, store *SeriesStore) (Update, bool) {
	p := Point{
		Time:  float64(rec.Time),
		Value: float64(rec.Value) / float64(rec.Window),
	}
	points, ok := store.append(rec.Window, p)
	if !ok {
		return Update{}, false
	}
	return Update{Window: rec.Window, Points: points}, true
}
