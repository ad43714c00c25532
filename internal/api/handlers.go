package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"digital_rf/internal/config"
	"digital_rf/internal/drf"
	"digital_rf/internal/metrics"
	"digital_rf/pkg/digitalrf"
	"digital_rf/pkg/ratelimiter"

	"github.com/gin-gonic/gin"
)

// HealthCheck 检查一个外部依赖的连接状况。
type HealthCheck func(ctx context.Context) error

// Handler 封装了状态接口的处理函数。
type Handler struct {
	pkg     *digitalrf.Package
	dataDir string
	checks  map[string]HealthCheck
	limiter ratelimiter.RateLimiter
}

// NewHandler 创建 Handler，dataDir 是对外暴露的数据根目录。
func NewHandler(pkg *digitalrf.Package, dataDir string) *Handler {
	return &Handler{pkg: pkg, dataDir: dataDir, checks: make(map[string]HealthCheck)}
}

// AddCheck 注册一个在 /healthz 中执行的依赖检查。
func (h *Handler) AddCheck(name string, check HealthCheck) {
	h.checks[name] = check
}

// SetRateLimiter 为 /api/v1 下的接口启用限流。
func (h *Handler) SetRateLimiter(l ratelimiter.RateLimiter) {
	h.limiter = l
}

// Health 执行全部依赖检查，任一失败时返回 503。
func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	failed := make(map[string]string)
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "checks": failed})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Metrics 暴露 Prometheus 指标。
func (h *Handler) Metrics(c *gin.Context) {
	metrics.Handler().ServeHTTP(c.Writer, c.Request)
}

// Version 返回库版本。
func (h *Handler) Version(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"version": h.pkg.Version()})
}

// Capabilities 返回已加载的能力和被跳过的能力组。
func (h *Handler) Capabilities(c *gin.Context) {
	skipped := make(map[string]string)
	for group, err := range h.pkg.Skipped() {
		skipped[group] = err.Error()
	}
	c.JSON(http.StatusOK, gin.H{"capabilities": h.pkg.Capabilities(), "skipped": skipped})
}

func (h *Handler) reader(c *gin.Context) (*drf.Reader, bool) {
	if h.dataDir == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "未配置数据目录"})
		return nil, false
	}
	r, err := digitalrf.NewReader(h.dataDir)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return nil, false
	}
	return r, true
}

// Channels 列出数据目录中的全部 RF 通道。
func (h *Handler) Channels(c *gin.Context) {
	r, ok := h.reader(c)
	if !ok {
		return
	}
	channels, err := r.Channels()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if channels == nil {
		channels = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"channels": channels})
}

// channelParam 读取并校验 channel 查询参数，不允许跳出数据目录。
func channelParam(c *gin.Context) (string, bool) {
	ch := c.Query("channel")
	if ch == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少 channel 参数"})
		return "", false
	}
	if strings.Contains(ch, "..") || strings.HasPrefix(ch, "/") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "非法的 channel 参数"})
		return "", false
	}
	return ch, true
}

func channelError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, drf.ErrUnknownChannel):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, drf.ErrNoData):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// ChannelProperties 返回通道属性。
func (h *Handler) ChannelProperties(c *gin.Context) {
	ch, ok := channelParam(c)
	if !ok {
		return
	}
	r, ok := h.reader(c)
	if !ok {
		return
	}
	props, err := r.Properties(ch)
	if err != nil {
		channelError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"channel":                 ch,
		"sample_rate_numerator":   props.SampleRateNumerator,
		"sample_rate_denominator": props.SampleRateDenominator,
		"subdir_cadence_secs":     props.SubdirCadenceSecs,
		"file_cadence_millisecs":  props.FileCadenceMillisecs,
		"dtype":                   props.DType,
		"is_complex":              props.IsComplex,
		"num_subchannels":         props.NumSubchannels,
		"uuid":                    props.UUID,
	})
}

// ChannelBounds 返回通道中第一个和最后一个样本的索引与时间。
func (h *Handler) ChannelBounds(c *gin.Context) {
	ch, ok := channelParam(c)
	if !ok {
		return
	}
	r, ok := h.reader(c)
	if !ok {
		return
	}
	props, err := r.Properties(ch)
	if err != nil {
		channelError(c, err)
		return
	}
	first, last, err := r.Bounds(ch)
	if err != nil {
		channelError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"channel":    ch,
		"first":      first,
		"last":       last,
		"first_time": sampleTime(props, first),
		"last_time":  sampleTime(props, last),
	})
}

// ChannelBlocks 返回时间区间 [start, end) 内的连续数据块。
// start 和 end 为 RFC3339 时间，省略时分别取通道的第一个和最后一个样本。
func (h *Handler) ChannelBlocks(c *gin.Context) {
	ch, ok := channelParam(c)
	if !ok {
		return
	}
	r, ok := h.reader(c)
	if !ok {
		return
	}
	props, err := r.Properties(ch)
	if err != nil {
		channelError(c, err)
		return
	}
	first, last, err := r.Bounds(ch)
	if err != nil {
		channelError(c, err)
		return
	}
	start, end := first, last+1
	if v := c.Query("start"); v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "无效的 start 参数: " + err.Error()})
			return
		}
		start = props.SampleAt(t)
	}
	if v := c.Query("end"); v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "无效的 end 参数: " + err.Error()})
			return
		}
		end = props.SampleAt(t)
	}
	blocks, err := r.ContinuousBlocks(ch, start, end)
	if err != nil {
		channelError(c, err)
		return
	}
	if blocks == nil {
		blocks = []drf.Block{}
	}
	c.JSON(http.StatusOK, gin.H{"channel": ch, "start": start, "end": end, "blocks": blocks})
}

func sampleTime(props drf.Properties, sample uint64) string {
	sec, nsec := props.SampleTime(sample)
	return time.Unix(sec, nsec).UTC().Format(time.RFC3339Nano)
}

// Files 列出数据目录中符合筛选条件的文件，查询参数与配置文件中的 watch 部分一致。
func (h *Handler) Files(c *gin.Context) {
	if h.dataDir == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "未配置数据目录"})
		return
	}
	watch := config.WatchConfig{
		Kinds:   c.QueryArray("kind"),
		Start:   c.Query("start"),
		End:     c.Query("end"),
		Include: c.QueryArray("include"),
		Exclude: c.QueryArray("exclude"),
	}
	opts, err := watch.ListOptions()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	paths, err := h.pkg.LsDRF(h.dataDir, opts)
	if errors.Is(err, digitalrf.ErrNotLoaded) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if paths == nil {
		paths = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"files": paths})
}
