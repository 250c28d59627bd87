package service

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/licenseshop/internal/config"
	"github.com/licenseshop/internal/constants"
	"github.com/licenseshop/internal/i18n"
	"github.com/licenseshop/internal/logger"
	"github.com/licenseshop/internal/models"
)

var mailTemplateVarPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

// Mail 一封待发送邮件
type Mail struct {
	Kind    string `json:"kind"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Mailer 邮件发送接口
type Mailer interface {
	Send(ctx context.Context, mail Mail) error
}

// LogMailer 只记录日志，不实际发送
type LogMailer struct{}

// Send 写入日志
func (LogMailer) Send(_ context.Context, mail Mail) error {
	logger.Infow("mail_logged",
		"kind", mail.Kind,
		"to", mail.To,
		"subject", mail.Subject,
		"body", mail.Body,
	)
	return nil
}

// NotificationService 订单邮件通知
type NotificationService struct {
	mailer Mailer
	shop   config.ShopConfig
	locale string
}

// NewNotificationService 创建通知服务，mailer 为空时使用 LogMailer
func NewNotificationService(mailer Mailer, shop config.ShopConfig, locale string) *NotificationService {
	if mailer == nil {
		mailer = LogMailer{}
	}
	return &NotificationService{mailer: mailer, shop: shop, locale: i18n.ResolveLocale(locale)}
}

// MailInput 邮件构建参数
type MailInput struct {
	Kind         string
	Order        *models.Order
	Deliverables map[string]string
	Message      string
}

// Build 渲染邮件
func (s *NotificationService) Build(input MailInput) (Mail, error) {
	if input.Order == nil {
		return Mail{}, ErrOrderNotFound
	}
	if !isMailKindSupported(input.Kind) {
		return Mail{}, fmt.Errorf("unsupported mail kind %q", input.Kind)
	}
	vars := s.templateVariables(input)
	subject := renderMailTemplate(i18n.T(s.locale, "email."+input.Kind+".subject"), vars)
	body := renderMailTemplate(i18n.T(s.locale, "email."+input.Kind+".body"), vars)
	return Mail{
		Kind:    input.Kind,
		To:      strings.TrimSpace(input.Order.CustomerEmail),
		Subject: subject,
		Body:    collapseBlankLines(body),
	}, nil
}

// Send 渲染并发送邮件
func (s *NotificationService) Send(ctx context.Context, input MailInput) (Mail, error) {
	mail, err := s.Build(input)
	if err != nil {
		return Mail{}, err
	}
	if mail.To == "" {
		logger.Warnw("mail_skip_no_recipient", "kind", mail.Kind, "order_id", input.Order.ID)
		return mail, nil
	}
	if err := s.mailer.Send(ctx, mail); err != nil {
		return mail, err
	}
	return mail, nil
}

// BuildDeliveryEmail 生成交付邮件正文
func (s *NotificationService) BuildDeliveryEmail(order *models.Order, deliverables map[string]string, message string) (Mail, error) {
	return s.Build(MailInput{
		Kind:         constants.MailKindDelivery,
		Order:        order,
		Deliverables: deliverables,
		Message:      message,
	})
}

func (s *NotificationService) templateVariables(input MailInput) map[string]string {
	order := input.Order
	name := strings.TrimSpace(order.CustomerName)
	if name == "" {
		if v, ok := order.Info["name"].(string); ok {
			name = strings.TrimSpace(v)
		}
	}
	if name == "" {
		name = order.CustomerEmail
	}
	return map[string]string{
		"shop_name":     s.shop.Name,
		"shop_email":    s.shop.Email,
		"shop_url":      s.shop.URL,
		"customer_name": name,
		"order_number":  order.OrderNumber,
		"total":         order.Total.String(),
		"currency":      order.Currency,
		"items":         formatOrderLines(order.Items),
		"deliverables":  formatDeliverables(order.Items, input.Deliverables),
		"message":       strings.TrimSpace(input.Message),
	}
}

func formatOrderLines(items models.OrderLines) string {
	lines := make([]string, 0, len(items))
	for _, item := range items {
		lines = append(lines, fmt.Sprintf("- %s x%d  %s", lineLabel(item), item.Quantity, models.NewMoneyFromDecimal(item.LineTotal()).String()))
	}
	return strings.Join(lines, "\n")
}

func formatDeliverables(items models.OrderLines, deliverables map[string]string) string {
	if len(deliverables) == 0 {
		return ""
	}
	var b strings.Builder
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		content := strings.TrimSpace(deliverables[item.Key()])
		if content == "" {
			continue
		}
		seen[item.Key()] = true
		fmt.Fprintf(&b, "%s:\n%s\n\n", lineLabel(item), content)
	}
	// 不在商品行中的交付内容按键名附加
	extra := make([]string, 0)
	for key := range deliverables {
		if !seen[key] && strings.TrimSpace(deliverables[key]) != "" {
			extra = append(extra, key)
		}
	}
	sort.Strings(extra)
	for _, key := range extra {
		fmt.Fprintf(&b, "%s:\n%s\n\n", key, strings.TrimSpace(deliverables[key]))
	}
	return strings.TrimSpace(b.String())
}

func lineLabel(item models.OrderLine) string {
	name := item.Name
	if name == "" {
		name = item.ID
	}
	if item.Variant != "" {
		return name + " (" + item.Variant + ")"
	}
	return name
}

func renderMailTemplate(template string, variables map[string]string) string {
	return mailTemplateVarPattern.ReplaceAllStringFunc(template, func(matched string) string {
		submatch := mailTemplateVarPattern.FindStringSubmatch(matched)
		if len(submatch) != 2 {
			return matched
		}
		return variables[strings.TrimSpace(submatch[1])]
	})
}

func collapseBlankLines(body string) string {
	for strings.Contains(body, "\n\n\n") {
		body = strings.ReplaceAll(body, "\n\n\n", "\n\n")
	}
	return strings.TrimSpace(body)
}

func isMailKindSupported(kind string) bool {
	switch kind {
	case constants.MailKindOrderConfirmation,
		constants.MailKindDelivery,
		constants.MailKindAbandonedRecovery,
		constants.MailKindRefund:
		return true
	}
	return false
}
