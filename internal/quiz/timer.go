package quiz

// Countdown 以秒为单位的倒计时，不会小于 0
type Countdown struct {
	remaining int
}

func (c *Countdown) Reset(seconds int) {
	if seconds < 0 {
		seconds = 0
	}
	c.remaining = seconds
}

func (c *Countdown) Remaining() int {
	return c.remaining
}

// Tick 走一秒，返回是否在本次归零
func (c *Countdown) Tick() bool {
	if c.remaining <= 0 {
		c.remaining = 0
		return false
	}
	c.remaining--
	return c.remaining == 0
}

// Expiry 一次 tick 后两个计时器的到期情况
type Expiry struct {
	Exam     bool
	Question bool
}

// Timers 整场考试计时器与单题计时器，由同一个 tick 驱动
type Timers struct {
	Exam     Countdown
	Question Countdown
}

// Tick 先同时扣减两个计时器（截断到 0），再返回到期结果；
// 调用方必须先处理考试到期，再处理单题到期
func (t *Timers) Tick() Expiry {
	return Expiry{
		Exam:     t.Exam.Tick(),
		Question: t.Question.Tick(),
	}
}
