// internal/service/config.go
package service

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"loud-plotter/internal/model"
)

// 传输方式
const (
	TransportRFCOMM    = "rfcomm"
	TransportSerial    = "serial"
	TransportWebsocket = "websocket"
	TransportReplay    = "replay"
)

type Config struct {
	Device  DeviceConfig  `mapstructure:"Device"`
	Stream  StreamConfig  `mapstructure:"Stream"`
	Plot    PlotConfig    `mapstructure:"Plot"`
	Log     LogConfig     `mapstructure:"Log"`
	Metrics MetricsConfig `mapstructure:"Metrics"`
}

// DeviceConfig 定义了传感器的连接信息
type DeviceConfig struct {
	Transport   string
	Address     string // 蓝牙 MAC，例如 00:06:66:D0:E6:2F
	Channel     int    // RFCOMM 通道 1-30
	SerialPort  string // 已绑定的 /dev/rfcomm0 或 USB 串口
	BaudRate    int
	ReadTimeout time.Duration // 串口读超时，同时决定响应关闭信号的延迟
	WSURL       string
	ReplayFile  string
	Greeting    string // 连接后发送一次，固件会回显
	ReadSize    int    // 单次 Receive 的最大字节数
}

// StreamConfig 定义了窗口集合和每个窗口的保留点数
type StreamConfig struct {
	Windows   []int64
	MaxPoints int // 0 表示不限制
}

// ThresholdConfig 固件的窗口触发阈值 (原始累加值)
type ThresholdConfig struct {
	Window int64
	Raw    int64
}

// PlotConfig 定义了图表输出
type PlotConfig struct {
	OutputPath     string
	Width          int
	Height         int
	Title          string
	ShowThresholds bool
	Thresholds     []ThresholdConfig
}

type LogConfig struct {
	Level       string
	Encoding    string
	OutputPaths []string
}

type MetricsConfig struct {
	Addr string // 为空时不启动 /metrics
}

// SetDefaults 写入所有默认值，参考程序中的编译期常量在这里变成可配置项
func SetDefaults(v *viper.Viper) {
	v.SetDefault("Device.Transport", TransportRFCOMM)
	v.SetDefault("Device.Address", "00:06:66:D0:E6:2F")
	v.SetDefault("Device.Channel", 1)
	v.SetDefault("Device.SerialPort", "/dev/rfcomm0")
	v.SetDefault("Device.BaudRate", 115200)
	v.SetDefault("Device.ReadTimeout", 500*time.Millisecond)
	v.SetDefault("Device.Greeting", "hello!!")
	v.SetDefault("Device.ReadSize", 1024)

	windows := make([]int64, len(model.DefaultWindows))
	for i, w := range model.DefaultWindows {
		windows[i] = int64(w)
	}
	v.SetDefault("Stream.Windows", windows)
	v.SetDefault("Stream.MaxPoints", 0)

	v.SetDefault("Plot.OutputPath", "louds.png")
	v.SetDefault("Plot.Width", 1024)
	v.SetDefault("Plot.Height", 600)
	v.SetDefault("Plot.Title", "Loud sound detections")
	v.SetDefault("Plot.ShowThresholds", true)

	v.SetDefault("Log.Level", "info")
	v.SetDefault("Log.Encoding", "json")
}

// envOnlyKeys 没有默认值的配置项，AutomaticEnv 只覆盖已知的 key，需要显式绑定
var envOnlyKeys = []string{
	"Device.WSURL",
	"Device.ReplayFile",
	"Log.OutputPaths",
	"Metrics.Addr",
	"Plot.Thresholds", // LOUDPLOT_PLOT_THRESHOLDS=32:940,128:3100
}

// NewViper 创建带默认值和环境变量覆盖 (LOUDPLOT_DEVICE_ADDRESS 等) 的 viper 实例
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix("LOUDPLOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envOnlyKeys {
		_ = v.BindEnv(key) // 只有 key 为空时才会出错
	}
	return v
}

// LoadConfig 读取并解析配置文件
// configPath 下没有 config.yaml 时只使用默认值、环境变量和命令行参数
func LoadConfig(v *viper.Viper, configPath string) (*Config, error) {
	// 设置配置文件的名称、类型和路径
	v.SetConfigName("config") // 文件名是 config
	v.SetConfigType("yaml")   // 文件类型是 yaml
	v.AddConfigPath(configPath)

	// 查找并读取配置文件
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errors.Wrap(err, "error reading config file")
		}
	}

	// 将配置绑定到结构体
	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		thresholdsHook,
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, errors.Wrap(err, "unable to decode config into struct")
	}
	if len(cfg.Plot.Thresholds) == 0 {
		cfg.Plot.Thresholds = DefaultThresholds()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DefaultThresholds 固件 main.c 中的阈值，按窗口升序
func DefaultThresholds() []ThresholdConfig {
	out := make([]ThresholdConfig, 0, len(model.DefaultWindows))
	for _, w := range model.DefaultWindows {
		if raw, ok := model.DefaultThresholds[w]; ok {
			out = append(out, ThresholdConfig{Window: int64(w), Raw: raw})
		}
	}
	return out
}

// ParseThresholds 解析 "window:raw" 列表，逗号分隔，例如 "32:940,128:3100"
func ParseThresholds(s string) ([]ThresholdConfig, error) {
	var out []ThresholdConfig
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		w, raw, ok := strings.Cut(item, ":")
		if !ok {
			return nil, fmt.Errorf("invalid threshold %q: want window:raw", item)
		}
		window, err := strconv.ParseInt(strings.TrimSpace(w), 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid threshold window %q", item)
		}
		value, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid threshold value %q", item)
		}
		out = append(out, ThresholdConfig{Window: window, Raw: value})
	}
	return out, nil
}

// thresholdsHook 让环境变量里的字符串能解码成 []ThresholdConfig
func thresholdsHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to != reflect.TypeOf([]ThresholdConfig(nil)) {
		return data, nil
	}
	return ParseThresholds(data.(string))
}

// Validate 检查启动配置
func (c *Config) Validate() error {
	switch c.Device.Transport {
	case TransportRFCOMM:
		if _, err := ParseDeviceAddress(c.Device.Address); err != nil {
			return err
		}
		if c.Device.Channel < 1 || c.Device.Channel > 30 {
			return fmt.Errorf("invalid RFCOMM channel %d: must be in [1, 30]", c.Device.Channel)
		}
	case TransportSerial:
		if c.Device.SerialPort == "" {
			return errors.New("serial transport requires Device.SerialPort")
		}
		if c.Device.BaudRate <= 0 {
			return fmt.Errorf("invalid baud rate %d", c.Device.BaudRate)
		}
	case TransportWebsocket:
		if c.Device.WSURL == "" {
			return errors.New("websocket transport requires Device.WSURL")
		}
	case TransportReplay:
		if c.Device.ReplayFile == "" {
			return errors.New("replay transport requires Device.ReplayFile")
		}
	default:
		return fmt.Errorf("unknown transport %q", c.Device.Transport)
	}
	if c.Device.ReadSize <= 0 {
		return fmt.Errorf("invalid read size %d", c.Device.ReadSize)
	}

	if len(c.Stream.Windows) == 0 {
		return errors.New("at least one window is required")
	}
	for _, w := range c.Stream.Windows {
		if w <= 0 {
			return fmt.Errorf("invalid window %d: must be positive", w)
		}
	}
	if c.Stream.MaxPoints < 0 {
		return fmt.Errorf("invalid max points %d", c.Stream.MaxPoints)
	}

	if c.Plot.OutputPath == "" {
		return errors.New("Plot.OutputPath is required")
	}
	if c.Plot.Width <= 0 || c.Plot.Height <= 0 {
		return fmt.Errorf("invalid plot size %dx%d", c.Plot.Width, c.Plot.Height)
	}
	return nil
}
