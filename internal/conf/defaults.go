package conf

import (
	"time"

	"github.com/spf13/viper"
)

// setDefaults registers the default value for every setting. Anything not
// overridden by the config file or environment stays at these values.
func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.debug", false)

	// Object storage
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.accesskeyid", "")
	v.SetDefault("s3.secretaccesskey", "")
	v.SetDefault("s3.bucket", "")
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.usessl", true)

	// Datasets
	v.SetDefault("dataset.normalglob", "merged_predictions_light/*/*/*.parquet")
	v.SetDefault("dataset.assignedpath", "test_pro_annotations.parquet")
	v.SetDefault("dataset.siteinfokey", "site_info.csv")

	// Validation log prefixes
	v.SetDefault("validations.normalprefix", "validations")
	v.SetDefault("validations.proprefix", "validations_pro")
	v.SetDefault("validations.expertprefix", "validations_expert")

	// Species
	v.SetDefault("species.translationspath", "assets/birdnet_multilingual.csv")
	v.SetDefault("species.topcount", 10)

	// Clip extraction: 3 s before the detection start, 6 s after, 48 kHz mono
	v.SetDefault("clip.samplerate", 48000)
	v.SetDefault("clip.leadseconds", 3.0)
	v.SetDefault("clip.tailseconds", 6.0)

	// Caches
	v.SetDefault("cache.validatedttl", 5*time.Minute)
	v.SetDefault("cache.assignedttl", 5*time.Minute)
	v.SetDefault("cache.clipttl", 10*time.Minute)

	// Session
	v.SetDefault("session.cookiename", "tabmon_session")
	v.SetDefault("session.secret", "")
	v.SetDefault("session.maxage", 86400)

	// Logging
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
}
