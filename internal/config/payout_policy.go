package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// PayoutPolicy carries the operator-tunable parts of payout reconciliation.
type PayoutPolicy struct {
	// TransferDescription is a format string receiving the program name.
	TransferDescription     string `mapstructure:"transferDescription"`
	NotificationSubject     string `mapstructure:"notificationSubject"`
	NotificationFrom        string `mapstructure:"notificationFrom"`
	CompleteSettledInvoices bool   `mapstructure:"completeSettledInvoices"`
}

func DefaultPayoutPolicy() PayoutPolicy {
	return PayoutPolicy{
		TransferDescription:     "Partners payout (%s)",
		NotificationSubject:     "You've been paid!",
		NotificationFrom:        "Partners <system@partnerpay.dev>",
		CompleteSettledInvoices: false,
	}
}

func (p PayoutPolicy) withDefaults() PayoutPolicy {
	defaults := DefaultPayoutPolicy()
	if strings.TrimSpace(p.TransferDescription) == "" {
		p.TransferDescription = defaults.TransferDescription
	}
	if strings.TrimSpace(p.NotificationSubject) == "" {
		p.NotificationSubject = defaults.NotificationSubject
	}
	if strings.TrimSpace(p.NotificationFrom) == "" {
		p.NotificationFrom = defaults.NotificationFrom
	}
	return p
}

type PayoutPolicyHolder struct {
	current atomic.Value // holds PayoutPolicy
}

// NewStaticPayoutPolicyHolder returns a holder that never reloads.
func NewStaticPayoutPolicyHolder(policy PayoutPolicy) *PayoutPolicyHolder {
	holder := &PayoutPolicyHolder{}
	holder.current.Store(policy.withDefaults())
	return holder
}

func NewPayoutPolicyHolder(cfg Config, log *zap.Logger) (*PayoutPolicyHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config.payouts")

	v := viper.New()
	if cfg.PayoutPolicyPath != "" {
		v.SetConfigFile(cfg.PayoutPolicyPath)
	} else {
		v.SetConfigName("payouts")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/partnerpay")
		v.AddConfigPath(".")
	}

	found := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		found = false
	}

	policy := DefaultPayoutPolicy()
	if found {
		var loaded PayoutPolicy
		if err := v.UnmarshalKey("payouts", &loaded); err != nil {
			return nil, err
		}
		policy = loaded.withDefaults()
	}
	if err := validatePayoutPolicy(policy); err != nil {
		return nil, err
	}

	holder := &PayoutPolicyHolder{}
	holder.current.Store(policy)

	if !found {
		return holder, nil
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		var updated PayoutPolicy
		if err := v.UnmarshalKey("payouts", &updated); err != nil {
			log.Warn("payout policy reload failed", zap.Error(err))
			return
		}
		updated = updated.withDefaults()
		if err := validatePayoutPolicy(updated); err != nil {
			log.Warn("invalid payout policy ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("payout policy reloaded", zap.String("file", e.Name))
	})
	v.WatchConfig()

	return holder, nil
}

func (h *PayoutPolicyHolder) Get() PayoutPolicy {
	if h == nil {
		return DefaultPayoutPolicy()
	}
	policy, ok := h.current.Load().(PayoutPolicy)
	if !ok {
		return DefaultPayoutPolicy()
	}
	return policy
}

func validatePayoutPolicy(p PayoutPolicy) error {
	if strings.Count(p.TransferDescription, "%s") != 1 ||
		strings.Contains(fmt.Sprintf(p.TransferDescription, "program"), "%!") {
		return errors.New("payouts.transferDescription must contain exactly one %s and no other verbs")
	}
	if !strings.Contains(p.NotificationFrom, "@") {
		return errors.New("payouts.notificationFrom must contain an email address")
	}
	return nil
}
