// Package cadence 提供周期窗口的纯日期运算，无 I/O、无错误分支。
package cadence

import "time"

const (
	// WindowDays 表示一个周期窗口覆盖的天数。
	WindowDays = 7
	// DayKeyLayout 为日历日去重键的固定格式。
	DayKeyLayout = "2006-01-02"
)

// WindowDuration 是一个完整窗口的时长。
const WindowDuration = WindowDays * 24 * time.Hour

// Window 描述以 anchor 为起点的半开区间 [Start, End)。
type Window struct {
	Start   time.Time
	End     time.Time
	Expired bool
}

// CurrentWindow 计算 anchor 所在的当前窗口及其是否已过期。
func CurrentWindow(anchor, now time.Time) Window {
	end := anchor.Add(WindowDuration)
	return Window{
		Start:   anchor,
		End:     end,
		Expired: !now.Before(end),
	}
}

// DayKey 返回本地时区下的日历日标识。
func DayKey(t time.Time) string {
	return t.Format(DayKeyLayout)
}

// StartOfDay 截断到本地时区当日零点。
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// ElapsedWindows 返回自 anchor 起已完整流逝的窗口数。
func ElapsedWindows(anchor, now time.Time) int {
	if now.Before(anchor) {
		return 0
	}
	return int(now.Sub(anchor) / WindowDuration)
}
