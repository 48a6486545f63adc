package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// DefaultStyle is the vector style rendered by the map surface.
const DefaultStyle = "https://api.olamaps.io/styleEditor/v1/styleEdit/styles/0eeb0df2-97bb-467a-b82d-0ed76b8bbc4b/capstone"

type GraylogConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address" validate:"required_if=Enabled true"`
}

type TransportConfig struct {
	Type string `mapstructure:"type" validate:"oneof=mqtt websocket loopback"`
}

type MqttConfig struct {
	URL            string        `mapstructure:"url" validate:"required"`
	ClientID       string        `mapstructure:"clientId" validate:"required"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	QoS            byte          `mapstructure:"qos" validate:"lte=2"`
	KeepAlive      time.Duration `mapstructure:"keepAlive" validate:"gt=0"`
	PublishTimeout time.Duration `mapstructure:"publishTimeout" validate:"gt=0"`
}

type WebsocketConfig struct {
	URL    string `mapstructure:"url" validate:"required,url"`
	Secret string `mapstructure:"secret"`
}

type TopicsConfig struct {
	Commands           string `mapstructure:"commands" validate:"required"`
	Ready              string `mapstructure:"ready" validate:"required"`
	VehiclePositions   string `mapstructure:"vehiclePositions" validate:"required"`
	GeolocationRequest string `mapstructure:"geolocationRequest" validate:"required"`
	GeolocationReply   string `mapstructure:"geolocationReply" validate:"required"`
}

type MapConfig struct {
	Container     string  `mapstructure:"container" validate:"required"`
	Zoom          float64 `mapstructure:"zoom" validate:"gte=0,lte=24"`
	Style         string  `mapstructure:"style" validate:"required,url"`
	APIKey        string  `mapstructure:"apiKey"`
	ReadyOnCreate bool    `mapstructure:"readyOnCreate"`
}

type AnimatorConfig struct {
	Interval    time.Duration `mapstructure:"interval" validate:"gt=0"`
	PanDuration time.Duration `mapstructure:"panDuration" validate:"gte=0"`
}

type MarkerConfig struct {
	BusIcon    string `mapstructure:"busIcon" validate:"required"`
	Size       int    `mapstructure:"size" validate:"gt=0"`
	UserColour string `mapstructure:"userColour" validate:"required,hexcolor"`
}

type GeolocationConfig struct {
	Mode    string        `mapstructure:"mode" validate:"oneof=remote static none"`
	Timeout time.Duration `mapstructure:"timeout" validate:"gt=0"`
	Zoom    float64       `mapstructure:"zoom" validate:"gte=0,lte=24"`
	Lat     float64       `mapstructure:"lat" validate:"gte=-90,lte=90"`
	Lng     float64       `mapstructure:"lng" validate:"gte=-180,lte=180"`
}

type GlideConfig struct {
	Enabled   bool    `mapstructure:"enabled"`
	FrameRate float64 `mapstructure:"frameRate" validate:"gt=0,lte=120"`
	Easing    string  `mapstructure:"easing" validate:"required"`
}

type FeedConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	VehicleID string `mapstructure:"vehicleId" validate:"required"`
}

type RouteConfig struct {
	File string `mapstructure:"file"`
}

type PagesConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr" validate:"required"`
	Dir     string `mapstructure:"dir" validate:"required"`
}

// Config is the typed view of the loaded configuration.
type Config struct {
	LogLevel    string            `mapstructure:"logLevel" validate:"oneof=trace debug info warn error TRACE DEBUG INFO WARN ERROR"`
	LogsDir     string            `mapstructure:"logsDir"`
	Graylog     GraylogConfig     `mapstructure:"graylog"`
	Transport   TransportConfig   `mapstructure:"transport"`
	Mqtt        MqttConfig        `mapstructure:"mqtt"`
	Websocket   WebsocketConfig   `mapstructure:"websocket"`
	Topics      TopicsConfig      `mapstructure:"topics"`
	Map         MapConfig         `mapstructure:"map"`
	Animator    AnimatorConfig    `mapstructure:"animator"`
	Marker      MarkerConfig      `mapstructure:"marker"`
	Geolocation GeolocationConfig `mapstructure:"geolocation"`
	Glide       GlideConfig       `mapstructure:"glide"`
	Feed        FeedConfig        `mapstructure:"feed"`
	Route       RouteConfig       `mapstructure:"route"`
	Pages       PagesConfig       `mapstructure:"pages"`
}

func setDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./logs")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("transport.type", "mqtt")

	viper.SetDefault("mqtt.url", "tcp://localhost:1883")
	viper.SetDefault("mqtt.clientId", "bustx")
	viper.SetDefault("mqtt.username", "")
	viper.SetDefault("mqtt.password", "")
	viper.SetDefault("mqtt.qos", 1)
	viper.SetDefault("mqtt.keepAlive", "30s")
	viper.SetDefault("mqtt.publishTimeout", "5s")

	viper.SetDefault("websocket.url", "ws://localhost:5000/ws")
	viper.SetDefault("websocket.secret", "")

	viper.SetDefault("topics.commands", "bustx/map/commands")
	viper.SetDefault("topics.ready", "bustx/map/ready")
	viper.SetDefault("topics.vehiclePositions", "bustx/gtfsrt/vehicle-positions")
	viper.SetDefault("topics.geolocationRequest", "bustx/geolocation/request")
	viper.SetDefault("topics.geolocationReply", "bustx/geolocation/reply")

	viper.SetDefault("map.container", "central-map")
	viper.SetDefault("map.zoom", 15)
	viper.SetDefault("map.style", DefaultStyle)
	viper.SetDefault("map.apiKey", "")
	viper.SetDefault("map.readyOnCreate", false)

	viper.SetDefault("animator.interval", "3s")
	viper.SetDefault("animator.panDuration", "2s")

	viper.SetDefault("marker.busIcon", "/bus-lane.png")
	viper.SetDefault("marker.size", 40)
	viper.SetDefault("marker.userColour", "#ff0000")

	viper.SetDefault("geolocation.mode", "remote")
	viper.SetDefault("geolocation.timeout", "10s")
	viper.SetDefault("geolocation.zoom", 12)
	viper.SetDefault("geolocation.lat", 0)
	viper.SetDefault("geolocation.lng", 0)

	viper.SetDefault("glide.enabled", false)
	viper.SetDefault("glide.frameRate", 30)
	viper.SetDefault("glide.easing", "inOutQuad")

	viper.SetDefault("feed.enabled", false)
	viper.SetDefault("feed.vehicleId", "bus")

	viper.SetDefault("route.file", "")

	viper.SetDefault("pages.enabled", false)
	viper.SetDefault("pages.addr", ":3000")
	viper.SetDefault("pages.dir", "client/dist")
}

// Load reads the config file at path, applies defaults and BUSTX_ environment
// overrides, and returns the validated result. A missing file is an error.
func Load(path string) (*Config, error) {
	setDefaults()

	viper.SetEnvPrefix("bustx")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetConfigFile(path)

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	return Current()
}

// Current unmarshals and validates whatever viper holds now.
func Current() (*Config, error) {
	setDefaults()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error decoding config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}
