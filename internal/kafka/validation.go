package kafka

import "errors"

func (c SenderConfig) Validate() error {
	if len(c.Brokers) == 0 {
		return errors.New("brokers cannot be empty")
	}
	if c.MaxRetries < 0 {
		return errors.New("maxRetries cannot be negative")
	}
	if c.WriteTimeout < 0 {
		return errors.New("writeTimeout cannot be negative")
	}
	switch c.Acks {
	case -1, 0, 1:
	default:
		return errors.New("acks must be -1, 0 or 1")
	}
	return nil
}

func (c ConsumerConfig) Validate() error {
	if len(c.Brokers) == 0 {
		return errors.New("brokers cannot be empty")
	}
	if c.Topic == "" {
		return errors.New("topic cannot be empty")
	}
	if c.GroupID == "" {
		return errors.New("groupID cannot be empty")
	}
	if c.RetryPolicy.MaxRetries < 0 {
		return errors.New("maxRetries cannot be negative")
	}
	if c.ForwardTimeout < 0 {
		return errors.New("forwardTimeout cannot be negative")
	}
	if c.FetchMaxBytes > 0 && c.FetchMinBytes > c.FetchMaxBytes {
		return errors.New("fetchMinBytes cannot exceed fetchMaxBytes")
	}
	return nil
}
