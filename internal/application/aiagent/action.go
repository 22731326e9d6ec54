// Package aiagent 实现异步 AI 任务代理：提交、后台转发到工作流 webhook、状态查询
package aiagent

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	apperrors "w4u-wizard-api/pkg/errors"
)

// Action AI 动作类型
type Action string

const (
	ActionInterview           Action = "interview"
	ActionConfigureStyle      Action = "configure_style"
	ActionGenerateOutline     Action = "generate_outline"
	ActionGenerateChapter     Action = "generate_chapter"
	ActionEditChapter         Action = "edit_chapter"
	ActionGenerateCoverPrompt Action = "generate_cover_prompt"
)

// Envelope 所有动作共有的字段
// UserID/JobID 由服务端在转发时写入，客户端提交时必须为空
type Envelope struct {
	Action Action `json:"action" validate:"required"`
	BookID string `json:"bookId,omitempty" validate:"omitempty,uuid"`
	// Extra 文档化的透传字段，必须是 JSON 对象，原样转发给工作流
	Extra  json.RawMessage `json:"extra,omitempty"`
	UserID string          `json:"userId,omitempty" validate:"isdefault"`
	JobID  string          `json:"jobId,omitempty" validate:"isdefault"`
}

func (e *Envelope) envelope() *Envelope { return e }

// Payload 带类型的动作载荷
type Payload interface {
	envelope() *Envelope
}

// ChatMessage 访谈对话消息
type ChatMessage struct {
	Role    string `json:"role" validate:"required,oneof=user assistant system"`
	Content string `json:"content" validate:"required,max=8000"`
}

// InterviewPayload 访谈阶段，书籍可能尚未创建
type InterviewPayload struct {
	Envelope
	Step     int           `json:"step" validate:"gte=0,lte=50"`
	Messages []ChatMessage `json:"messages" validate:"required,min=1,max=100,dive"`
}

// ConfigureStylePayload 风格配置
type ConfigureStylePayload struct {
	Envelope
	Genre          string `json:"genre" validate:"required,max=100"`
	Tone           string `json:"tone,omitempty" validate:"max=100"`
	TargetAudience string `json:"targetAudience,omitempty" validate:"max=200"`
	Language       string `json:"language,omitempty" validate:"omitempty,oneof=it en"`
	ChapterCount   int    `json:"chapterCount,omitempty" validate:"omitempty,min=1,max=100"`
}

// GenerateOutlinePayload 生成大纲
type GenerateOutlinePayload struct {
	Envelope
	ChapterCount int    `json:"chapterCount,omitempty" validate:"omitempty,min=1,max=100"`
	Notes        string `json:"notes,omitempty" validate:"max=4000"`
}

// GenerateChapterPayload 生成单章正文
type GenerateChapterPayload struct {
	Envelope
	ChapterID     string `json:"chapterId" validate:"required,uuid"`
	ChapterNumber int    `json:"chapterNumber" validate:"required,min=1"`
}

// EditChapterPayload 按指令改写章节
type EditChapterPayload struct {
	Envelope
	ChapterID    string `json:"chapterId" validate:"required,uuid"`
	Instructions string `json:"instructions" validate:"required,max=4000"`
	Content      string `json:"content,omitempty"`
}

// GenerateCoverPromptPayload 生成封面提示词
type GenerateCoverPromptPayload struct {
	Envelope
	Style string `json:"style,omitempty" validate:"max=200"`
}

// actionSpec 动作注册信息
type actionSpec struct {
	newPayload   func() Payload
	requiresBook bool
}

var actions = map[Action]actionSpec{
	ActionInterview:           {func() Payload { return &InterviewPayload{} }, false},
	ActionConfigureStyle:      {func() Payload { return &ConfigureStylePayload{} }, true},
	ActionGenerateOutline:     {func() Payload { return &GenerateOutlinePayload{} }, true},
	ActionGenerateChapter:     {func() Payload { return &GenerateChapterPayload{} }, true},
	ActionEditChapter:         {func() Payload { return &EditChapterPayload{} }, true},
	ActionGenerateCoverPrompt: {func() Payload { return &GenerateCoverPromptPayload{} }, true},
}

// Actions 已注册的动作名，按字母序
func Actions() []string {
	names := make([]string, 0, len(actions))
	for a := range actions {
		names = append(names, string(a))
	}
	sort.Strings(names)
	return names
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Request 解码后的动作请求
type Request struct {
	Action  Action
	Payload Payload
}

// BookID 关联书籍，可能为空
func (r *Request) BookID() string {
	return r.Payload.envelope().BookID
}

// JSON 序列化载荷用于持久化
func (r *Request) JSON() ([]byte, error) {
	return json.Marshal(r.Payload)
}

// Stamp 写入服务端字段并返回转发请求体
func (r *Request) Stamp(userID, jobID string) Payload {
	env := r.Payload.envelope()
	env.UserID = userID
	env.JobID = jobID
	return r.Payload
}

// DecodeAction 解析请求体：按 action 选择载荷类型，拒绝未知字段并校验
func DecodeAction(body []byte) (*Request, error) {
	var head struct {
		Action string `json:"action"`
	}
	if err := json.Unmarshal(body, &head); err != nil {
		return nil, apperrors.ErrInvalidParam.WithDetail("invalid JSON body")
	}
	if strings.TrimSpace(head.Action) == "" {
		return nil, apperrors.New(apperrors.CodeInvalidParam, "action is required")
	}

	spec, ok := actions[Action(head.Action)]
	if !ok {
		return nil, apperrors.Newf(apperrors.CodeUnknownAction, "unknown action: %s", head.Action)
	}

	payload := spec.newPayload()
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(payload); err != nil {
		return nil, apperrors.New(apperrors.CodeValidationFailed, "invalid payload").WithDetail(err.Error())
	}

	if err := validate.Struct(payload); err != nil {
		return nil, apperrors.New(apperrors.CodeValidationFailed, "invalid payload").WithDetail(describeValidation(err))
	}

	env := payload.envelope()
	if spec.requiresBook && env.BookID == "" {
		return nil, apperrors.New(apperrors.CodeInvalidParam, "bookId is required")
	}
	if len(env.Extra) > 0 && !isJSONObject(env.Extra) {
		return nil, apperrors.New(apperrors.CodeValidationFailed, "invalid payload").WithDetail("extra must be a JSON object")
	}

	return &Request{Action: env.Action, Payload: payload}, nil
}

func isJSONObject(raw json.RawMessage) bool {
	var obj map[string]json.RawMessage
	return json.Unmarshal(raw, &obj) == nil && obj != nil
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed on '%s'", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
