package stream

import "github.com/prometheus/client_golang/prometheus"

var (
	metricStreamsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "satbridge_streams_active",
		Help: "Streams currently in the Running state.",
	})
	metricPacketsSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "satbridge_packets_sent_total",
		Help: "RTP datagrams handed to the sink, per stream.",
	}, []string{"stream"})
	metricBytesSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "satbridge_bytes_sent_total",
		Help: "TS payload bytes handed to the sink, per stream.",
	}, []string{"stream"})
	metricRingOverwrites = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "satbridge_ring_overwrites_total",
		Help: "Unsent ring buffers overwritten by a lapping producer, per stream.",
	}, []string{"stream"})
	metricSignalStrength = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "satbridge_signal_strength",
		Help: "Last monitored signal strength, normalized 0..240.",
	}, []string{"stream"})
	metricSignalSNR = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "satbridge_signal_snr",
		Help: "Last monitored SNR, normalized 0..15.",
	}, []string{"stream"})
)

func init() {
	prometheus.MustRegister(
		metricStreamsActive,
		metricPacketsSent,
		metricBytesSent,
		metricRingOverwrites,
		metricSignalStrength,
		metricSignalSNR,
	)
}
