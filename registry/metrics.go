package registry

import (
	"time"

	gometrics "github.com/rcrowley/go-metrics"
)

// opMetrics はオペレーションごとの成功/拒否数と処理時間を記録する
type opMetrics struct {
	reg gometrics.Registry
}

func (m opMetrics) observe(op string, start time.Time, err error) {
	gometrics.GetOrRegisterTimer("competition."+op+".duration", m.reg).UpdateSince(start)
	if err != nil {
		gometrics.GetOrRegisterCounter("competition."+op+".rejected", m.reg).Inc(1)
		return
	}
	gometrics.GetOrRegisterCounter("competition."+op+".ok", m.reg).Inc(1)
}

func (m opMetrics) escrowed(delta int64) {
	gometrics.GetOrRegisterCounter("competition.escrow.balance", m.reg).Inc(delta)
}
