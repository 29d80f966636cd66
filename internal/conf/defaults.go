// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("main.name", "vitalcam")
	v.SetDefault("main.log.level", "info")
	v.SetDefault("main.log.format", "text")
	v.SetDefault("main.log.path", "")

	v.SetDefault("vitals.heartrate.buffersize", 150)
	v.SetDefault("vitals.heartrate.bandlow", 0.75)
	v.SetDefault("vitals.heartrate.bandhigh", 3.0)
	v.SetDefault("vitals.heartrate.filterorder", 4)
	v.SetDefault("vitals.heartrate.smoothingwindow", 5)
	v.SetDefault("vitals.heartrate.fftsize", 1024)
	v.SetDefault("vitals.heartrate.minpeaktopeak", 0.5)
	v.SetDefault("vitals.heartrate.confidencescale", 15.0)
	v.SetDefault("vitals.heartrate.minbpm", 40.0)
	v.SetDefault("vitals.heartrate.maxbpm", 180.0)
	v.SetDefault("vitals.heartrate.historysize", 10)
	v.SetDefault("vitals.heartrate.minhistory", 3)

	v.SetDefault("vitals.stress.buffersize", 300)
	v.SetDefault("vitals.stress.minsamples", 30)
	v.SetDefault("vitals.stress.maxbpm", 200.0)

	v.SetDefault("vitals.spo2.buffersize", 150)
	v.SetDefault("vitals.spo2.mindc", 10.0)
	v.SetDefault("vitals.spo2.smoothingwindow", 5)
	v.SetDefault("vitals.spo2.minr", 0.4)
	v.SetDefault("vitals.spo2.maxr", 2.5)
	v.SetDefault("vitals.spo2.calibrationa", 100.0)
	v.SetDefault("vitals.spo2.calibrationb", 15.0)
	v.SetDefault("vitals.spo2.minspo2", 85.0)
	v.SetDefault("vitals.spo2.maxspo2", 100.0)
	v.SetDefault("vitals.spo2.alpha", 0.2)
	v.SetDefault("vitals.spo2.strongac", 0.01)
	v.SetDefault("vitals.spo2.strongconfidence", 50)
	v.SetDefault("vitals.spo2.weakconfidence", 20)

	v.SetDefault("vitals.faceloss.timeout", 2*time.Second)
	v.SetDefault("vitals.session.idle", 10*time.Minute)

	v.SetDefault("vitals.enabled.heartrate", true)
	v.SetDefault("vitals.enabled.stress", true)
	v.SetDefault("vitals.enabled.spo2", true)

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.topicprefix", "biometrics")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.passwordfile", "")
	v.SetDefault("mqtt.qos", 0)
	v.SetDefault("mqtt.retain", false)
	v.SetDefault("mqtt.interval", 5*time.Second)
	v.SetDefault("mqtt.discovery.enabled", false)
	v.SetDefault("mqtt.discovery.prefix", "homeassistant")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.listen", "0.0.0.0:8090")

	v.SetDefault("webserver.enabled", false)
	v.SetDefault("webserver.listen", "0.0.0.0:8080")

	v.SetDefault("sentry.enabled", false)
	v.SetDefault("sentry.dsn", "")
	v.SetDefault("sentry.dsnfile", "")
}

// Default returns settings populated only from defaults, without reading files or environment.
func Default() *Settings {
	v := viper.New()
	setDefaultConfig(v)

	s := &Settings{}
	if err := v.Unmarshal(s); err != nil {
		// defaults are static, so this only fails on a broken struct tag
		panic(err)
	}
	return s
}
