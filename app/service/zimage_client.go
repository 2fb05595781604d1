package service

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"cinemind/app/config"
	"cinemind/app/logger"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"resty.dev/v3"
)

// ratioResolutions 图像比例到默认分辨率的映射，
// 请求未携带分辨率时按比例查表
var ratioResolutions = map[string]string{
	"1:1":  "1024x1024",
	"16:9": "1024x576",
	"9:16": "576x1024",
	"4:3":  "1024x768",
	"3:4":  "768x1024",
	"3:2":  "1024x683",
	"2:3":  "683x1024",
	"21:9": "1344x576",
}

const (
	defaultResolution = "1024x1024"
	thumbnailMaxSize  = 256
)

// GenerationParams 图像生成参数
type GenerationParams struct {
	Ratio      string `json:"ratio"`
	Resolution string `json:"resolution"`
	Width      int    `json:"width,omitempty"`
	Height     int    `json:"height,omitempty"`
}

// ImageResult 图像生成结果描述符，路径相对于公开媒体根
type ImageResult struct {
	ImageID        string `json:"image_id"`
	ImageURL       string `json:"image_url"`
	ThumbnailURL   string `json:"thumbnail_url"`
	MimeType       string `json:"mime_type"`
	SizeBytes      int64  `json:"size_bytes"`
	ChecksumSHA256 string `json:"checksum_sha256"`
}

// imageRef 提供方响应里定位到的图像引用，二选一
type imageRef struct {
	b64 string
	url string
}

// ZImageClient 外部图像生成客户端。
// 未配置 base_url 或 api_key 时本地合成占位图，不对外调用。
type ZImageClient struct {
	cfg       config.ZImageConfig
	mediaRoot string
	client    *resty.Client
	log       *logger.Logger
}

// NewZImageClient 创建图像生成客户端
func NewZImageClient(cfg config.ZImageConfig, mediaRoot string, log *logger.Logger) *ZImageClient {
	client := resty.New()
	if cfg.Timeout > 0 {
		client.SetTimeout(time.Duration(cfg.Timeout) * time.Second)
	}
	return &ZImageClient{cfg: cfg, mediaRoot: mediaRoot, client: client, log: log}
}

// Enabled 判断外部图像生成是否可用
func (z *ZImageClient) Enabled() bool {
	return z.cfg.BaseURL != "" && z.cfg.APIKey != ""
}

// ResolveResolution 确定最终使用的分辨率串
func ResolveResolution(params GenerationParams) string {
	if params.Resolution != "" {
		return params.Resolution
	}
	if res, ok := ratioResolutions[params.Ratio]; ok {
		return res
	}
	return defaultResolution
}

// GenerateImage 生成图像并落盘，返回全图与缩略图的描述符。
// 图像标识由提示词内容哈希派生，相同提示词得到相同标识。
// 外部调用没有内部重试，传输失败或非 2xx 直接返回错误。
func (z *ZImageClient) GenerateImage(prompts Preset, params GenerationParams) (*ImageResult, error) {
	imageID := deriveImageID(prompts)

	width, height := resolveDimensions(params)

	var data []byte
	var err error
	if !z.Enabled() {
		data, err = z.renderPlaceholder(width, height, prompts.EN)
		if err != nil {
			return nil, fmt.Errorf("合成占位图失败: %w", err)
		}
	} else {
		data, err = z.callProvider(prompts, params)
		if err != nil {
			return nil, err
		}
	}

	// 统一解码再编码，顺带完成色彩模式转换
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("解码图像数据失败: %w", err)
	}

	imagePath, thumbPath, err := z.mediaPaths(imageID)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG); err != nil {
		return nil, fmt.Errorf("编码图像失败: %w", err)
	}
	encoded := buf.Bytes()
	if err := os.WriteFile(imagePath, encoded, 0644); err != nil {
		return nil, fmt.Errorf("写入图像文件失败: %w", err)
	}

	thumb := imaging.Fit(img, thumbnailMaxSize, thumbnailMaxSize, imaging.Lanczos)
	if err := imaging.Save(thumb, thumbPath); err != nil {
		return nil, fmt.Errorf("写入缩略图失败: %w", err)
	}

	checksum := sha256.Sum256(encoded)

	return &ImageResult{
		ImageID:        imageID,
		ImageURL:       z.publicURL(imagePath),
		ThumbnailURL:   z.publicURL(thumbPath),
		MimeType:       "image/jpeg",
		SizeBytes:      int64(len(encoded)),
		ChecksumSHA256: hex.EncodeToString(checksum[:]),
	}, nil
}

// deriveImageID 由提示词内容哈希派生图像标识。
// 只取内容哈希，不掺时间盐，相同内容可复用、可去重。
func deriveImageID(prompts Preset) string {
	sum := sha256.Sum256([]byte(prompts.EN + prompts.ZH))
	return hex.EncodeToString(sum[:])[:12]
}

func resolveDimensions(params GenerationParams) (int, int) {
	if params.Width > 0 && params.Height > 0 {
		return params.Width, params.Height
	}
	parts := strings.SplitN(ResolveResolution(params), "x", 2)
	width, _ := strconv.Atoi(parts[0])
	height, _ := strconv.Atoi(parts[1])
	if width <= 0 || height <= 0 {
		return 512, 512
	}
	return width, height
}

// renderPlaceholder 本地合成指定尺寸的占位图，底部带提示词横幅
func (z *ZImageClient) renderPlaceholder(width, height int, banner string) ([]byte, error) {
	dc := gg.NewContext(width, height)
	dc.SetRGB255(20, 20, 20)
	dc.Clear()

	// 居中描边矩形，便于肉眼区分占位图
	margin := float64(min(width, height)) / 8
	dc.SetColor(color.RGBA{R: 64, G: 64, B: 72, A: 255})
	dc.SetLineWidth(2)
	dc.DrawRectangle(margin, margin, float64(width)-2*margin, float64(height)-2*margin)
	dc.Stroke()

	if banner != "" {
		dc.SetColor(color.RGBA{R: 160, G: 160, B: 168, A: 255})
		dc.DrawStringAnchored(truncate(banner, 64), float64(width)/2, float64(height)-margin/2, 0.5, 0.5)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, dc.Image(), imaging.JPEG); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// callProvider 调用外部图像生成接口并取回图像字节
func (z *ZImageClient) callProvider(prompts Preset, params GenerationParams) ([]byte, error) {
	body := map[string]any{
		"prompts": prompts,
		"params": map[string]any{
			"ratio":      params.Ratio,
			"resolution": ResolveResolution(params),
		},
	}

	resp, err := z.client.R().
		SetHeader("Authorization", "Bearer "+z.cfg.APIKey).
		SetBody(body).
		Post(strings.TrimRight(z.cfg.BaseURL, "/") + "/v1/generate")
	if err != nil {
		return nil, fmt.Errorf("图像生成请求失败: %w", err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return nil, fmt.Errorf("图像生成失败，状态码: %d, 响应: %s", resp.StatusCode(), truncate(resp.String(), 400))
	}

	raw := resp.Bytes()

	// 部分提供方直接返回图像字节
	if ct := resp.Header().Get("Content-Type"); strings.HasPrefix(ct, "image/") {
		return raw, nil
	}

	ref, err := extractImageRef(raw)
	if err != nil {
		return nil, err
	}
	if ref.b64 != "" {
		data, err := base64.StdEncoding.DecodeString(ref.b64)
		if err != nil {
			return nil, fmt.Errorf("解码图像 base64 失败: %w", err)
		}
		return data, nil
	}
	return z.download(ref.url)
}

// extractImageRef 在提供方响应树中定位图像引用。
// 提供方的响应结构不唯一，按固定顺序逐个尝试提取策略，
// 第一个命中的策略生效；全部落空视为响应无法识别。
func extractImageRef(raw []byte) (imageRef, error) {
	var tree map[string]any
	if err := json.Unmarshal(raw, &tree); err != nil {
		// 非 JSON 响应当作原始图像字节处理
		return imageRef{b64: base64.StdEncoding.EncodeToString(raw)}, nil
	}

	strategies := []func(map[string]any) (imageRef, bool){
		// data.images[0].{b64_json,url}
		func(t map[string]any) (imageRef, bool) {
			data, _ := t["data"].(map[string]any)
			images, _ := data["images"].([]any)
			return refFromEntry(firstMap(images))
		},
		// data[0].{b64_json,url}
		func(t map[string]any) (imageRef, bool) {
			list, _ := t["data"].([]any)
			return refFromEntry(firstMap(list))
		},
		// output.{image_url,url,b64_json}
		func(t map[string]any) (imageRef, bool) {
			output, _ := t["output"].(map[string]any)
			return refFromEntry(output)
		},
		// 顶层字段
		func(t map[string]any) (imageRef, bool) {
			return refFromEntry(t)
		},
	}

	for _, strategy := range strategies {
		if ref, ok := strategy(tree); ok {
			return ref, nil
		}
	}
	return imageRef{}, fmt.Errorf("无法从图像响应中定位结果: %s", truncate(string(raw), 200))
}

func firstMap(list []any) map[string]any {
	if len(list) == 0 {
		return nil
	}
	m, _ := list[0].(map[string]any)
	return m
}

func refFromEntry(entry map[string]any) (imageRef, bool) {
	if entry == nil {
		return imageRef{}, false
	}
	for _, key := range []string{"b64_json", "image_base64", "b64"} {
		if s, ok := entry[key].(string); ok && s != "" {
			return imageRef{b64: s}, true
		}
	}
	for _, key := range []string{"image_url", "url"} {
		if s, ok := entry[key].(string); ok && s != "" {
			return imageRef{url: s}, true
		}
	}
	return imageRef{}, false
}

// download 下载提供方返回的图像地址
func (z *ZImageClient) download(url string) ([]byte, error) {
	resp, err := z.client.R().Get(url)
	if err != nil {
		return nil, fmt.Errorf("下载图像失败: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("下载图像失败，状态码: %d", resp.StatusCode())
	}
	return resp.Bytes(), nil
}

// mediaPaths 计算按日期分区的存储路径并确保目录存在
func (z *ZImageClient) mediaPaths(imageID string) (imagePath, thumbPath string, err error) {
	now := time.Now().UTC()
	datePart := filepath.Join(now.Format("2006"), now.Format("01"), now.Format("02"))

	imagesDir := filepath.Join(z.mediaRoot, "images", datePart)
	thumbsDir := filepath.Join(z.mediaRoot, "thumbs", datePart)
	for _, dir := range []string{imagesDir, thumbsDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", "", fmt.Errorf("创建媒体目录失败: %w", err)
		}
	}

	imagePath = filepath.Join(imagesDir, imageID+".jpg")
	thumbPath = filepath.Join(thumbsDir, imageID+"_thumb.jpg")
	return imagePath, thumbPath, nil
}

// publicURL 把落盘路径转换为 /media 前缀的公开地址
func (z *ZImageClient) publicURL(path string) string {
	rel, err := filepath.Rel(z.mediaRoot, path)
	if err != nil {
		return path
	}
	return "/media/" + filepath.ToSlash(rel)
}
