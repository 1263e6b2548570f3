package serv

import (
	"context"
	"fmt"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dosco/pipejin/core"
	"github.com/spf13/afero"
)

// initConfig initializes the configuration
func (s *pipejinService) initConfig() error {
	c := s.conf

	if err := c.Core.Validate(); err != nil {
		return err
	}

	hp := strings.SplitN(c.HostPort, ":", 2)

	if len(hp) == 2 {
		if c.Host != "" {
			hp[0] = c.Host
		}

		if c.Port != "" {
			hp[1] = c.Port
		}

		c.hostPort = fmt.Sprintf("%s:%s", hp[0], hp[1])
	}

	if c.hostPort == "" {
		c.hostPort = defaultHP
	}

	if c.DB.RetryAttempts == 0 {
		c.DB.RetryAttempts = 1
	}
	return nil
}

// initShapes picks the shape provider from the shape path, s3:// locations
// are read with the default AWS credential chain
func (s *pipejinService) initShapes() error {
	if s.shapes != nil {
		return nil
	}

	path := s.conf.Shape.Path
	if path == "" {
		return fmt.Errorf("pipejin: shape.path is not set")
	}

	if bucket, key, ok := core.ParseS3URI(path); ok {
		var opts []func(*awsconfig.LoadOptions) error
		if s.conf.Shape.Region != "" {
			opts = append(opts, awsconfig.WithRegion(s.conf.Shape.Region))
		}

		cfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
		if err != nil {
			return fmt.Errorf("pipejin: aws config: %w", err)
		}
		s.shapes = core.NewS3ShapeProvider(s3.NewFromConfig(cfg), bucket, key)
		s.log.Infof("reading shape from %s", path)
		return nil
	}

	if strings.HasPrefix(path, "s3://") {
		return fmt.Errorf("pipejin: invalid s3 location '%s', expected s3://bucket/key", path)
	}

	path = s.conf.AbsolutePath(path)
	s.shapes = core.NewFileShapeProvider(afero.NewOsFs(), path)
	s.log.Infof("reading shape from %s", path)
	return nil
}
