package transport

import (
	"context"
	"net/http"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/retryhttp"
	"github.com/hashicorp/go-retryablehttp"
)

func newRetryableClient(config Config, httpClient *http.Client, retryMax int, logger log.Logger) *retryablehttp.Client {
	client := retryhttp.NewClient(logger)
	client.HTTPClient = httpClient
	client.RetryMax = retryMax
	if config.RetryWaitMin > 0 {
		client.RetryWaitMin = config.RetryWaitMin
	}
	if config.RetryWaitMax > 0 {
		client.RetryWaitMax = config.RetryWaitMax
	}
	client.CheckRetry = createRetryPolicy(logger)
	// hand the original error back, the caller classifies resets and cancellations
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	return client
}

func createRetryPolicy(logger log.Logger) retryablehttp.CheckRetry {
	return func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		retry, checkErr := retryablehttp.DefaultRetryPolicy(ctx, resp, err)
		if resp != nil {
			logger.Debugf("CheckRetry: retry=%v ; status=%d ; err=%v", retry, resp.StatusCode, err)
		} else {
			logger.Debugf("CheckRetry: retry=%v ; err=%v", retry, err)
		}
		return retry, checkErr
	}
}
