package remote

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTConfig 定义 MQTT 通道参数
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Prefix   string // 主题前缀，指令主题为 <prefix>/<robot_id>/cmd
	RobotID  string
	QoS      byte
	Timeout  time.Duration
}

func (c MQTTConfig) commandTopic() string { return fmt.Sprintf("%s/%s/cmd", c.Prefix, c.RobotID) }
func (c MQTTConfig) eventTopic() string   { return fmt.Sprintf("%s/%s/events", c.Prefix, c.RobotID) }

// MQTTLink 通过 MQTT broker 收发文本行
// 重连由 Receiver 控制，因此关闭了 paho 的自动重连。
type MQTTLink struct {
	cfg    MQTTConfig
	logger *slog.Logger

	newClient func(*mqtt.ClientOptions) mqtt.Client

	mu     sync.Mutex
	client mqtt.Client
	sess   *session
}

func NewMQTTLink(cfg MQTTConfig, logger *slog.Logger) *MQTTLink {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	return &MQTTLink{
		cfg:       cfg,
		newClient: mqtt.NewClient,
		logger:    logger.With("component", "mqtt_link", "broker", cfg.Broker),
	}
}

func (l *MQTTLink) Open() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sess.connected() {
		return nil
	}
	if l.client != nil {
		l.client.Disconnect(0)
		l.client = nil
		l.logger.Debug("已释放断开的 MQTT 客户端")
	}

	s := newSession()
	opts := mqtt.NewClientOptions().
		AddBroker(l.cfg.Broker).
		SetClientID(l.cfg.ClientID).
		SetUsername(l.cfg.Username).
		SetPassword(l.cfg.Password).
		SetKeepAlive(30 * time.Second).
		SetPingTimeout(time.Second).
		SetConnectTimeout(l.cfg.Timeout).
		SetAutoReconnect(false).
		SetCleanSession(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.alive.Store(false)
		l.logger.Warn("MQTT 连接断开", "error", err)
	})

	client := l.newClient(opts)
	if token := client.Connect(); !token.WaitTimeout(l.cfg.Timeout) || token.Error() != nil {
		return fmt.Errorf("连接 MQTT broker 失败: %v", token.Error())
	}

	handler := func(_ mqtt.Client, msg mqtt.Message) {
		if dropped := s.push(string(msg.Payload())); dropped > 0 {
			l.logger.Warn("入站缓冲区已满，丢弃指令", "dropped", dropped)
		}
	}
	topic := l.cfg.commandTopic()
	if token := client.Subscribe(topic, l.cfg.QoS, handler); !token.WaitTimeout(l.cfg.Timeout) || token.Error() != nil {
		client.Disconnect(250)
		return fmt.Errorf("订阅主题 %s 失败: %v", topic, token.Error())
	}

	l.client = client
	l.sess = s
	l.logger.Info("MQTT 通道已连接", "command_topic", topic, "event_topic", l.cfg.eventTopic())
	return nil
}

func (l *MQTTLink) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sess.connected()
}

func (l *MQTTLink) Available() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sess.available()
}

func (l *MQTTLink) ReadLine() (string, error) {
	l.mu.Lock()
	s := l.sess
	l.mu.Unlock()
	return s.pop()
}

func (l *MQTTLink) WriteLine(line string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.sess.connected() {
		return ErrNotConnected
	}
	token := l.client.Publish(l.cfg.eventTopic(), l.cfg.QoS, false, line)
	if !token.WaitTimeout(l.cfg.Timeout) {
		return fmt.Errorf("发布到 %s 超时", l.cfg.eventTopic())
	}
	return token.Error()
}

func (l *MQTTLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.client == nil {
		return nil
	}
	l.sess.alive.Store(false)
	l.client.Disconnect(250)
	l.client = nil
	l.logger.Info("MQTT 通道已断开")
	return nil
}
