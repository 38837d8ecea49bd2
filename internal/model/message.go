// Package model 包含了应用的数据模型定义。
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Role 是消息的角色。
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid 报告角色是否为已知值。
func (r Role) Valid() bool {
	return r == RoleSystem || r == RoleUser || r == RoleAssistant
}

// PartType 区分消息片段的类型。
type PartType string

const (
	PartText  PartType = "text"
	PartImage PartType = "image_ref"
)

// Part 是消息内容中的一个片段：文本，或指向已存储图片的引用。
type Part struct {
	Type     PartType `json:"type"`
	Text     string   `json:"text,omitempty"`
	ImageRef string   `json:"image_ref,omitempty"`
}

func TextPart(text string) Part {
	return Part{Type: PartText, Text: text}
}

func ImagePart(ref string) Part {
	return Part{Type: PartImage, ImageRef: ref}
}

// Render 返回片段的文本形式，图片渲染为 [image: <ref>]。
func (p Part) Render() string {
	if p.Type == PartImage {
		return "[image: " + p.ImageRef + "]"
	}
	return p.Text
}

// Message 代表会话中的单条消息。
type Message struct {
	Role      Role      `json:"role"`
	Parts     []Part    `json:"parts"`
	Timestamp time.Time `json:"timestamp"`
}

// NewTextMessage 创建只包含一个文本片段的消息。
func NewTextMessage(role Role, text string) Message {
	return Message{Role: role, Parts: []Part{TextPart(text)}, Timestamp: time.Now().UTC()}
}

// Text 拼接所有文本片段，忽略图片。
func (m Message) Text() string {
	var sb strings.Builder
	for _, p := range m.Parts {
		if p.Type == PartText {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

// Content 返回消息内容的渲染结果，多个片段以空格分隔。
func (m Message) Content() string {
	rendered := make([]string, 0, len(m.Parts))
	for _, p := range m.Parts {
		rendered = append(rendered, p.Render())
	}
	return strings.Join(rendered, " ")
}

// Render 是消息唯一的文本序列化形式："role: content"。
func (m Message) Render() string {
	return string(m.Role) + ": " + m.Content()
}

// UnmarshalJSON 同时接受 parts 形式和客户端常用的 {"role","content"} 形式，
// content 可以是字符串或片段数组。
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw struct {
		Role      Role            `json:"role"`
		Parts     []Part          `json:"parts"`
		Content   json.RawMessage `json:"content"`
		Timestamp time.Time       `json:"timestamp"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if !raw.Role.Valid() {
		return fmt.Errorf("unknown message role %q", raw.Role)
	}
	m.Role = raw.Role
	m.Timestamp = raw.Timestamp
	m.Parts = raw.Parts
	if len(m.Parts) > 0 || len(raw.Content) == 0 || string(raw.Content) == "null" {
		return nil
	}

	var text string
	if err := json.Unmarshal(raw.Content, &text); err == nil {
		m.Parts = []Part{TextPart(text)}
		return nil
	}
	var parts []Part
	if err := json.Unmarshal(raw.Content, &parts); err != nil {
		return errors.New("message content must be a string or a list of parts")
	}
	m.Parts = parts
	return nil
}
