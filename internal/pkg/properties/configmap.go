package properties

import (
	"context"
	"crypto/sha256"
	"fmt"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/util/retry"
	"k8s.io/klog/v2"
)

const (
	artifactIDAnnotation = "scan-gate/artifact-id"
	managedByLabel       = "app.kubernetes.io/managed-by"
	managedByValue       = "scan-gate"
)

// ConfigMapStore keeps the properties of each artifact in its own ConfigMap. The ConfigMap name is derived from a
// hash of the artifact id; the id itself is kept in an annotation.
type ConfigMapStore struct {
	client    kubernetes.Interface
	namespace string
}

func NewConfigMapStore(client kubernetes.Interface, namespace string) *ConfigMapStore {
	if namespace == "" {
		namespace = metav1.NamespaceDefault
	}
	return &ConfigMapStore{client: client, namespace: namespace}
}

// NewConfigMapStoreFromKubeConfig configures a kubernetes client using an in-cluster config, or an external
// kubeconfig file.
func NewConfigMapStoreFromKubeConfig(kubeConfigPath, namespace string) (*ConfigMapStore, error) {
	kubeConfig, err := rest.InClusterConfig()
	if err == rest.ErrNotInCluster {
		kubeConfig, err = clientcmd.BuildConfigFromFlags("", kubeConfigPath)
	}
	if err != nil {
		return nil, err
	}
	kubeClient, err := kubernetes.NewForConfig(kubeConfig)
	if err != nil {
		return nil, err
	}
	return NewConfigMapStore(kubeClient, namespace), nil
}

func configMapName(artifactID string) string {
	return fmt.Sprintf("scangate-%x", sha256.Sum256([]byte(artifactID)))
}

func (c *ConfigMapStore) Get(ctx context.Context, artifactID, key string) (string, bool, error) {
	cm, err := c.client.CoreV1().ConfigMaps(c.namespace).Get(ctx, configMapName(artifactID), metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	v, ok := cm.Data[key]
	return v, ok, nil
}

func (c *ConfigMapStore) Set(ctx context.Context, artifactID, key, value string) error {
	name := configMapName(artifactID)
	configMaps := c.client.CoreV1().ConfigMaps(c.namespace)
	return retry.RetryOnConflict(retry.DefaultRetry, func() error {
		cm, err := configMaps.Get(ctx, name, metav1.GetOptions{})
		if apierrors.IsNotFound(err) {
			klog.V(4).Infof("Creating property ConfigMap %s/%s for %s", c.namespace, name, artifactID)
			_, err = configMaps.Create(ctx, &corev1.ConfigMap{
				ObjectMeta: metav1.ObjectMeta{
					Name:        name,
					Namespace:   c.namespace,
					Labels:      map[string]string{managedByLabel: managedByValue},
					Annotations: map[string]string{artifactIDAnnotation: artifactID},
				},
				Data: map[string]string{key: value},
			}, metav1.CreateOptions{})
			if apierrors.IsAlreadyExists(err) {
				// Lost a creation race; retry as an update.
				return apierrors.NewConflict(schema.GroupResource{Resource: "configmaps"}, name, err)
			}
			return err
		}
		if err != nil {
			return err
		}
		updated := cm.DeepCopy()
		if updated.Data == nil {
			updated.Data = map[string]string{}
		}
		updated.Data[key] = value
		_, err = configMaps.Update(ctx, updated, metav1.UpdateOptions{})
		return err
	})
}

func (c *ConfigMapStore) Has(ctx context.Context, artifactID, key string) (bool, error) {
	_, ok, err := c.Get(ctx, artifactID, key)
	return ok, err
}

func (c *ConfigMapStore) Close() error {
	return nil
}
